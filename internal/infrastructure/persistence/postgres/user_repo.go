package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `id, xp, level, total_points, extra_lives, clan_id, version, created_at, updated_at`

// Create creates a new progress record.
func (r *UserRepository) Create(ctx context.Context, p *user.Progress) error {
	query := `
		INSERT INTO user_progress (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
	`

	_, err := r.conn.Exec(ctx, query,
		p.ID,
		p.XP,
		p.Level,
		p.TotalPoints,
		p.ExtraLives,
		nullString(p.ClanID),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user progress: %w", err)
	}

	p.Version = 1
	return nil
}

// GetByID returns a progress record by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.Progress, error) {
	query := `SELECT ` + userColumns + ` FROM user_progress WHERE id = $1`
	return scanUser(r.conn.QueryRow(ctx, query, id))
}

// Update saves p if the stored version still equals p.Version.
func (r *UserRepository) Update(ctx context.Context, p *user.Progress) error {
	return updateUser(ctx, r.conn, p)
}

// List returns progress records ordered by ID.
func (r *UserRepository) List(ctx context.Context, opts user.ListOptions) ([]*user.Progress, error) {
	if opts.Limit <= 0 {
		opts = user.DefaultListOptions()
	}
	query := `SELECT ` + userColumns + ` FROM user_progress ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.conn.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user progress: %w", err)
	}
	defer rows.Close()

	var out []*user.Progress
	for rows.Next() {
		p, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers shared with the transactional repositories
// ─────────────────────────────────────────────────────────────────────────────

func updateUser(ctx context.Context, q Querier, p *user.Progress) error {
	query := `
		UPDATE user_progress SET
			xp = $1,
			level = $2,
			total_points = $3,
			extra_lives = $4,
			clan_id = $5,
			updated_at = $6,
			version = version + 1
		WHERE id = $7 AND version = $8
	`

	tag, err := q.Exec(ctx, query,
		p.XP,
		p.Level,
		p.TotalPoints,
		p.ExtraLives,
		nullString(p.ClanID),
		p.UpdatedAt,
		p.ID,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update user progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staleOrMissing(ctx, q, "user_progress", p.ID, shared.ErrUserStale, shared.ErrUserNotFound)
	}

	p.Version++
	return nil
}

func scanUser(row pgx.Row) (*user.Progress, error) {
	var (
		p      user.Progress
		clanID *string
	)
	err := row.Scan(
		&p.ID,
		&p.XP,
		&p.Level,
		&p.TotalPoints,
		&p.ExtraLives,
		&clanID,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user progress: %w", err)
	}
	if clanID != nil {
		p.ClanID = *clanID
	}
	return &p, nil
}

// staleOrMissing tells a version conflict from an absent row after a
// conditional update touched nothing. table is always a package constant.
func staleOrMissing(ctx context.Context, q Querier, table, id string, stale, missing error) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", table, err)
	}
	if !exists {
		return missing
	}
	return stale
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dateArg(d shared.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

func dateFrom(t *time.Time) shared.Date {
	if t == nil {
		return shared.Date{}
	}
	return shared.DateOf(*t, time.UTC)
}
