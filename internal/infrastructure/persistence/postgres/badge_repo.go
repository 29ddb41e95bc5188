package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.Repository for PostgreSQL.
type BadgeRepository struct {
	conn *Connection
}

var _ badge.Repository = (*BadgeRepository)(nil)

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// EnsureCatalog upserts every definition in one batch.
func (r *BadgeRepository) EnsureCatalog(ctx context.Context, defs []badge.Definition) error {
	if len(defs) == 0 {
		return nil
	}
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range defs {
			batch.Queue(`
				INSERT INTO badge_definitions (id, name, description, icon, type, rarity, requirement, xp_reward)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					icon = EXCLUDED.icon,
					type = EXCLUDED.type,
					rarity = EXCLUDED.rarity,
					requirement = EXCLUDED.requirement,
					xp_reward = EXCLUDED.xp_reward
			`, d.ID, d.Name, d.Description, d.Icon, string(d.Type), string(d.Rarity), d.Requirement, d.XPReward)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert badge catalog: %w", err)
		}
		return nil
	})
}

// ListDefinitions returns the stored catalog ordered by ID.
func (r *BadgeRepository) ListDefinitions(ctx context.Context) ([]badge.Definition, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, description, icon, type, rarity, requirement, xp_reward
		FROM badge_definitions
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list badge definitions: %w", err)
	}
	defer rows.Close()

	out := make([]badge.Definition, 0)
	for rows.Next() {
		var (
			d           badge.Definition
			typ, rarity string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Icon, &typ, &rarity, &d.Requirement, &d.XPReward); err != nil {
			return nil, fmt.Errorf("failed to scan badge definition: %w", err)
		}
		d.Type = badge.Type(typ)
		d.Rarity = badge.Rarity(rarity)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListEarned returns the badges of a user in award order.
func (r *BadgeRepository) ListEarned(ctx context.Context, userID string) ([]badge.UserBadge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, badge_id, earned_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	defer rows.Close()

	out := make([]badge.UserBadge, 0)
	for rows.Next() {
		var ub badge.UserBadge
		if err := rows.Scan(&ub.ID, &ub.UserID, &ub.BadgeID, &ub.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user badge: %w", err)
		}
		out = append(out, ub)
	}
	return out, rows.Err()
}

// Award inserts the user badge. The (user_id, badge_id) key keeps awarding
// append-only.
func (r *BadgeRepository) Award(ctx context.Context, ub badge.UserBadge) error {
	if ub.ID == "" {
		ub.ID = uuid.NewString()
	}
	if ub.EarnedAt.IsZero() {
		ub.EarnedAt = time.Now().UTC()
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO user_badges (id, user_id, badge_id, earned_at)
		VALUES ($1, $2, $3, $4)
	`, ub.ID, ub.UserID, ub.BadgeID, ub.EarnedAt)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.ErrBadgeEarned
		case IsForeignKeyViolation(err):
			return shared.ErrBadgeNotFound
		}
		return fmt.Errorf("failed to award badge: %w", err)
	}
	return nil
}
