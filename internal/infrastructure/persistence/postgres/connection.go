// Package postgres implements the PostgreSQL persistence layer of the
// progression engine. Every Update is a compare-and-swap on the row version;
// multi-record saves run in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrConnectionClosed  = errors.New("postgres: connection pool is closed")
	ErrInvalidURL        = errors.New("postgres: invalid database URL")
	ErrMigrationFailed   = errors.New("postgres: migration failed")
	ErrTransactionFailed = errors.New("postgres: transaction failed")
)

// Коды SQLSTATE, которые репозитории переводят в доменные ошибки.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// IsUniqueViolation reports a duplicate primary or unique key.
func IsUniqueViolation(err error) bool { return hasCode(err, codeUniqueViolation) }

// IsForeignKeyViolation reports a reference to a missing user, habit or clan.
func IsForeignKeyViolation(err error) bool { return hasCode(err, codeForeignKeyViolation) }

// IsNoRows reports an empty single-row result.
func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION POOL
// ══════════════════════════════════════════════════════════════════════════════

// PoolLimits bounds the pgx pool. Zero fields fall back to DefaultPoolLimits.
type PoolLimits struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolLimits sizes the pool for a single worker process.
func DefaultPoolLimits() PoolLimits {
	return PoolLimits{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

func (l PoolLimits) withDefaults() PoolLimits {
	def := DefaultPoolLimits()
	return PoolLimits{
		MaxConns:        pick(l.MaxConns, def.MaxConns),
		MinConns:        pick(l.MinConns, def.MinConns),
		MaxConnLifetime: pick(l.MaxConnLifetime, def.MaxConnLifetime),
		MaxConnIdleTime: pick(l.MaxConnIdleTime, def.MaxConnIdleTime),
	}
}

func pick[T int32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// Connection wraps the pgx pool; every call fails fast once Close ran.
type Connection struct {
	pool   *pgxpool.Pool
	closed bool
	mu     sync.RWMutex
}

// NewConnectionFromURL connects with DefaultPoolLimits.
func NewConnectionFromURL(ctx context.Context, databaseURL string) (*Connection, error) {
	return NewConnectionFromURLWithLimits(ctx, databaseURL, PoolLimits{})
}

// NewConnectionFromURLWithLimits parses databaseURL, applies limits and pings
// the server before returning. A malformed URL yields ErrInvalidURL.
func NewConnectionFromURLWithLimits(ctx context.Context, databaseURL string, limits PoolLimits) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	limits = limits.withDefaults()
	poolConfig.MaxConns = limits.MaxConns
	poolConfig.MinConns = limits.MinConns
	poolConfig.MaxConnLifetime = limits.MaxConnLifetime
	poolConfig.MaxConnIdleTime = limits.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	return &Connection{pool: pool}, nil
}

// open returns the pool, or ErrConnectionClosed after Close.
func (c *Connection) open() (*pgxpool.Pool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	return c.pool, nil
}

// Close is idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pool.Close()
}

// Ping is used by the worker's health check.
func (c *Connection) Ping(ctx context.Context) error {
	pool, err := c.open()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES AND TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Querier is satisfied by *Connection and pgx.Tx, so update helpers run the
// same SQL inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*Connection)(nil)

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := c.open()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := c.open()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := c.open()
	if err != nil {
		return errRow{err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

// errRow defers the closed-pool error to Scan, as pgx does for query errors.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// WithTx runs fn in a READ COMMITTED transaction. The version guard in every
// UPDATE makes stronger isolation unnecessary. fn's error rolls back; a
// panic rolls back and re-panics.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	pool, err := c.open()
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one schema step. DownSQL undoes UpSQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// migrationLockKey is the pg_advisory_xact_lock key taken by every migration
// step, so workers starting together apply each version once.
const migrationLockKey int64 = 0x70726f67 // "prog"

// Migrator applies the embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the version table if needed.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations maps applied versions to their apply time.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration in version order, one transaction
// per version.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
				return err
			}
			// Повторная проверка под локом: другой воркер мог успеть раньше.
			var done bool
			if err := tx.QueryRow(ctx,
				fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE version = $1)", m.tableName),
				mig.Version,
			).Scan(&done); err != nil || done {
				return err
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the newest applied migration. It is a no-op on an empty
// schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	var down string
	for _, mig := range m.migrations {
		if mig.Version == last {
			down = mig.DownSQL
		}
	}
	if down == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, down); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progress", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_clans", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_badges", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_user_quests", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}
