package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUEST REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QuestRepository implements quest.Repository for PostgreSQL.
type QuestRepository struct {
	conn *Connection
}

var _ quest.Repository = (*QuestRepository)(nil)

// NewQuestRepository creates a new QuestRepository.
func NewQuestRepository(conn *Connection) *QuestRepository {
	return &QuestRepository{conn: conn}
}

const questColumns = `id, user_id, quest_id, quest_type, period_start, status, progress,
	requirement, xp_reward, completed_at, version, created_at, updated_at`

// Create stores a newly assigned quest.
func (r *QuestRepository) Create(ctx context.Context, q *quest.UserQuest) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO user_quests (`+questColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
	`,
		q.ID,
		q.UserID,
		q.QuestID,
		string(q.Type),
		q.PeriodStart.Time(),
		string(q.Status),
		q.Progress,
		q.Requirement,
		q.XPReward,
		timeArg(q.CompletedAt),
		q.CreatedAt,
		q.UpdatedAt,
	)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.ErrQuestAssigned
		case IsForeignKeyViolation(err):
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to create quest: %w", err)
	}
	q.Version = 1
	return nil
}

// GetByID returns a user quest by ID.
func (r *QuestRepository) GetByID(ctx context.Context, id string) (*quest.UserQuest, error) {
	return scanQuest(r.conn.QueryRow(ctx, `SELECT `+questColumns+` FROM user_quests WHERE id = $1`, id))
}

// ListByUser returns the user's quests, optionally filtered by status.
func (r *QuestRepository) ListByUser(ctx context.Context, userID string, status quest.Status) ([]*quest.UserQuest, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+questColumns+` FROM user_quests
		WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY period_start, quest_id
	`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	out := make([]*quest.UserQuest, 0)
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Update saves progress or status under a version check.
func (r *QuestRepository) Update(ctx context.Context, q *quest.UserQuest) error {
	return updateQuest(ctx, r.conn, q)
}

// SaveCompletion saves the closed quest and the rewarded user in one transaction.
func (r *QuestRepository) SaveCompletion(ctx context.Context, q *quest.UserQuest, u *user.Progress) error {
	qv, uv := q.Version, u.Version
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := updateQuest(ctx, tx, q); err != nil {
			return err
		}
		return updateUser(ctx, tx, u)
	})
	if err != nil {
		q.Version, u.Version = qv, uv
	}
	return err
}

func updateQuest(ctx context.Context, db Querier, q *quest.UserQuest) error {
	tag, err := db.Exec(ctx, `
		UPDATE user_quests SET
			status = $1,
			progress = $2,
			completed_at = $3,
			updated_at = $4,
			version = version + 1
		WHERE id = $5 AND version = $6
	`, string(q.Status), q.Progress, timeArg(q.CompletedAt), q.UpdatedAt, q.ID, q.Version)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staleOrMissing(ctx, db, "user_quests", q.ID, shared.ErrQuestStale, shared.ErrQuestNotFound)
	}
	q.Version++
	return nil
}

func scanQuest(row pgx.Row) (*quest.UserQuest, error) {
	var (
		q           quest.UserQuest
		questType   string
		status      string
		period      time.Time
		completedAt *time.Time
	)
	err := row.Scan(
		&q.ID,
		&q.UserID,
		&q.QuestID,
		&questType,
		&period,
		&status,
		&q.Progress,
		&q.Requirement,
		&q.XPReward,
		&completedAt,
		&q.Version,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestNotFound
		}
		return nil, fmt.Errorf("failed to scan quest: %w", err)
	}
	q.Type = quest.Type(questType)
	q.Status = quest.Status(status)
	q.PeriodStart = shared.DateOf(period, time.UTC)
	if completedAt != nil {
		q.CompletedAt = *completedAt
	}
	return &q, nil
}

func timeArg(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
