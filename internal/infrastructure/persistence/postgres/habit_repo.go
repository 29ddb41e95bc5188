package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// HabitRepository implements habit.Repository for PostgreSQL.
type HabitRepository struct {
	conn *Connection
}

var _ habit.Repository = (*HabitRepository)(nil)

// NewHabitRepository creates a new HabitRepository.
func NewHabitRepository(conn *Connection) *HabitRepository {
	return &HabitRepository{conn: conn}
}

const habitColumns = `id, user_id, title, difficulty, streak, best_streak, total_completions,
	last_completed, used_extra_life, extra_life_date, missed_days, extra_life_granted,
	version, created_at, updated_at`

// Create creates a new habit.
func (r *HabitRepository) Create(ctx context.Context, h *habit.Habit) error {
	query := `
		INSERT INTO habits (` + habitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
	`

	_, err := r.conn.Exec(ctx, query,
		h.ID,
		h.UserID,
		h.Title,
		string(h.Difficulty),
		h.Streak,
		h.BestStreak,
		h.TotalCompletions,
		dateArg(h.LastCompleted),
		h.UsedExtraLife,
		dateArg(h.ExtraLifeDate),
		h.MissedDays,
		h.ExtraLifeGranted,
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.ErrHabitAlreadyExists
		case IsForeignKeyViolation(err):
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to create habit: %w", err)
	}

	h.Version = 1
	return nil
}

// GetByID returns a habit by ID.
func (r *HabitRepository) GetByID(ctx context.Context, id string) (*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1`
	return scanHabit(r.conn.QueryRow(ctx, query, id))
}

// ListByUser returns the habits of a user ordered by ID.
func (r *HabitRepository) ListByUser(ctx context.Context, userID string) ([]*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id = $1 ORDER BY id`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	out := make([]*habit.Habit, 0)
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Update saves h if the stored version still equals h.Version.
func (r *HabitRepository) Update(ctx context.Context, h *habit.Habit) error {
	return updateHabit(ctx, r.conn, h)
}

// HasCompletion reports whether the log already holds a row for the day.
func (r *HabitRepository) HasCompletion(ctx context.Context, habitID string, on shared.Date) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM habit_completions WHERE habit_id = $1 AND completed_on = $2)
	`, habitID, on.Time()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return exists, nil
}

// RecordCompletion inserts the log row and saves the habit, and the user when
// u is non-nil, in one transaction. The UNIQUE(habit_id, completed_on)
// constraint turns a concurrent duplicate into ErrHabitCompletedToday.
func (r *HabitRepository) RecordCompletion(ctx context.Context, h *habit.Habit, c habit.Completion, u *user.Progress) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now().UTC()
	}

	hv := h.Version
	var uv int64
	if u != nil {
		uv = u.Version
	}
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO habit_completions (id, habit_id, user_id, completed_on, xp_earned, notes, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, c.HabitID, c.UserID, c.On.Time(), c.XPEarned, c.Notes, c.CompletedAt)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrHabitCompletedToday
			}
			return fmt.Errorf("failed to insert completion: %w", err)
		}
		if err := updateHabit(ctx, tx, h); err != nil {
			return err
		}
		if u == nil {
			return nil
		}
		return updateUser(ctx, tx, u)
	})
	if err != nil {
		h.Version = hv
		if u != nil {
			u.Version = uv
		}
	}
	return err
}

// ListCompletions returns the newest log rows first.
func (r *HabitRepository) ListCompletions(ctx context.Context, habitID string, limit int) ([]habit.Completion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.Query(ctx, `
		SELECT id, habit_id, user_id, completed_on, xp_earned, notes, completed_at
		FROM habit_completions
		WHERE habit_id = $1
		ORDER BY completed_on DESC
		LIMIT $2
	`, habitID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	out := make([]habit.Completion, 0)
	for rows.Next() {
		var (
			c  habit.Completion
			on time.Time
		)
		if err := rows.Scan(&c.ID, &c.HabitID, &c.UserID, &on, &c.XPEarned, &c.Notes, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		c.On = shared.DateOf(on, time.UTC)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveRedemption saves the habit and the user in one transaction.
func (r *HabitRepository) SaveRedemption(ctx context.Context, h *habit.Habit, u *user.Progress) error {
	hv, uv := h.Version, u.Version
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := updateHabit(ctx, tx, h); err != nil {
			return err
		}
		return updateUser(ctx, tx, u)
	})
	if err != nil {
		h.Version, u.Version = hv, uv
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func updateHabit(ctx context.Context, q Querier, h *habit.Habit) error {
	query := `
		UPDATE habits SET
			title = $1,
			difficulty = $2,
			streak = $3,
			best_streak = $4,
			total_completions = $5,
			last_completed = $6,
			used_extra_life = $7,
			extra_life_date = $8,
			missed_days = $9,
			extra_life_granted = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $12 AND version = $13
	`

	tag, err := q.Exec(ctx, query,
		h.Title,
		string(h.Difficulty),
		h.Streak,
		h.BestStreak,
		h.TotalCompletions,
		dateArg(h.LastCompleted),
		h.UsedExtraLife,
		dateArg(h.ExtraLifeDate),
		h.MissedDays,
		h.ExtraLifeGranted,
		h.UpdatedAt,
		h.ID,
		h.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staleOrMissing(ctx, q, "habits", h.ID, shared.ErrHabitStale, shared.ErrHabitNotFound)
	}

	h.Version++
	return nil
}

func scanHabit(row pgx.Row) (*habit.Habit, error) {
	var (
		h             habit.Habit
		difficulty    string
		lastCompleted *time.Time
		extraLifeDate *time.Time
	)
	err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.Title,
		&difficulty,
		&h.Streak,
		&h.BestStreak,
		&h.TotalCompletions,
		&lastCompleted,
		&h.UsedExtraLife,
		&extraLifeDate,
		&h.MissedDays,
		&h.ExtraLifeGranted,
		&h.Version,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to scan habit: %w", err)
	}
	h.Difficulty = habit.Difficulty(difficulty)
	h.LastCompleted = dateFrom(lastCompleted)
	h.ExtraLifeDate = dateFrom(extraLifeDate)
	return &h, nil
}
