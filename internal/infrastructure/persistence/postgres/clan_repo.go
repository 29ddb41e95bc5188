package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAN REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ClanRepository implements clan.Repository for PostgreSQL.
type ClanRepository struct {
	conn *Connection
}

var _ clan.Repository = (*ClanRepository)(nil)

// NewClanRepository creates a new ClanRepository.
func NewClanRepository(conn *Connection) *ClanRepository {
	return &ClanRepository{conn: conn}
}

const clanColumns = `id, name, description, icon, owner_id, is_private, max_members,
	total_xp, level, member_count, version, created_at, updated_at`

const memberColumns = `clan_id, user_id, xp_contributed, role, joined_at, version`

// Create creates a new clan.
func (r *ClanRepository) Create(ctx context.Context, c *clan.Clan) error {
	query := `
		INSERT INTO clans (` + clanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Description,
		c.Icon,
		c.OwnerID,
		c.IsPrivate,
		c.MaxMembers,
		c.TotalXP,
		c.Level,
		c.MemberCount,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrClanAlreadyExists
		}
		return fmt.Errorf("failed to create clan: %w", err)
	}

	c.Version = 1
	return nil
}

// GetByID returns a clan by ID.
func (r *ClanRepository) GetByID(ctx context.Context, id string) (*clan.Clan, error) {
	query := `SELECT ` + clanColumns + ` FROM clans WHERE id = $1`
	return scanClan(r.conn.QueryRow(ctx, query, id))
}

// List returns clans ordered by ID.
func (r *ClanRepository) List(ctx context.Context, opts user.ListOptions) ([]*clan.Clan, error) {
	if opts.Limit <= 0 {
		opts = user.DefaultListOptions()
	}
	query := `SELECT ` + clanColumns + ` FROM clans ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.conn.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list clans: %w", err)
	}
	defer rows.Close()

	var out []*clan.Clan
	for rows.Next() {
		c, err := scanClan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetMembership returns the membership of a user in a clan.
func (r *ClanRepository) GetMembership(ctx context.Context, clanID, userID string) (*clan.Membership, error) {
	query := `SELECT ` + memberColumns + ` FROM clan_members WHERE clan_id = $1 AND user_id = $2`
	return scanMember(r.conn.QueryRow(ctx, query, clanID, userID))
}

// ListMembers returns the members of a clan, biggest contributors first.
func (r *ClanRepository) ListMembers(ctx context.Context, clanID string) ([]*clan.Membership, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM clan_members
		WHERE clan_id = $1
		ORDER BY xp_contributed DESC, user_id
	`

	rows, err := r.conn.Query(ctx, query, clanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clan members: %w", err)
	}
	defer rows.Close()

	out := make([]*clan.Membership, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMember inserts the membership and saves the clan and the user in one
// transaction.
func (r *ClanRepository) AddMember(ctx context.Context, c *clan.Clan, m *clan.Membership, u *user.Progress) error {
	cv, uv := c.Version, u.Version
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO clan_members (`+memberColumns+`)
			VALUES ($1, $2, $3, $4, $5, 1)
		`, m.ClanID, m.UserID, m.XPContributed, string(m.Role), m.JoinedAt)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrAlreadyInClan
			}
			return fmt.Errorf("failed to insert clan member: %w", err)
		}
		if err := updateClan(ctx, tx, c); err != nil {
			return err
		}
		return updateUser(ctx, tx, u)
	})
	if err != nil {
		c.Version, u.Version = cv, uv
		return err
	}

	m.Version = 1
	return nil
}

// SaveContribution saves the clan total and the member ledger in one
// transaction.
func (r *ClanRepository) SaveContribution(ctx context.Context, c *clan.Clan, m *clan.Membership) error {
	cv := c.Version
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := updateClan(ctx, tx, c); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE clan_members SET
				xp_contributed = $1,
				role = $2,
				version = version + 1
			WHERE clan_id = $3 AND user_id = $4 AND version = $5
		`, m.XPContributed, string(m.Role), m.ClanID, m.UserID, m.Version)
		if err != nil {
			return fmt.Errorf("failed to update clan member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			err := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM clan_members WHERE clan_id = $1 AND user_id = $2)
			`, m.ClanID, m.UserID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check clan member: %w", err)
			}
			if !exists {
				return shared.ErrMembershipNotFound
			}
			return shared.ErrClanStale
		}
		return nil
	})
	if err != nil {
		c.Version = cv
		return err
	}

	m.Version++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func updateClan(ctx context.Context, q Querier, c *clan.Clan) error {
	query := `
		UPDATE clans SET
			name = $1,
			description = $2,
			icon = $3,
			is_private = $4,
			max_members = $5,
			total_xp = $6,
			level = $7,
			member_count = $8,
			updated_at = $9,
			version = version + 1
		WHERE id = $10 AND version = $11
	`

	tag, err := q.Exec(ctx, query,
		c.Name,
		c.Description,
		c.Icon,
		c.IsPrivate,
		c.MaxMembers,
		c.TotalXP,
		c.Level,
		c.MemberCount,
		c.UpdatedAt,
		c.ID,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update clan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staleOrMissing(ctx, q, "clans", c.ID, shared.ErrClanStale, shared.ErrClanNotFound)
	}

	c.Version++
	return nil
}

func scanClan(row pgx.Row) (*clan.Clan, error) {
	var c clan.Clan
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Icon,
		&c.OwnerID,
		&c.IsPrivate,
		&c.MaxMembers,
		&c.TotalXP,
		&c.Level,
		&c.MemberCount,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrClanNotFound
		}
		return nil, fmt.Errorf("failed to scan clan: %w", err)
	}
	return &c, nil
}

func scanMember(row pgx.Row) (*clan.Membership, error) {
	var (
		m    clan.Membership
		role string
	)
	err := row.Scan(&m.ClanID, &m.UserID, &m.XPContributed, &role, &m.JoinedAt, &m.Version)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to scan clan member: %w", err)
	}
	m.Role = clan.Role(role)
	return &m, nil
}
