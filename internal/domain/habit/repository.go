package habit

import (
	"context"

	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения привычек и журнала выполнений.
type Repository interface {
	// Create сохраняет новую привычку.
	// Возвращает ErrHabitAlreadyExists, если привычка уже существует.
	Create(ctx context.Context, h *Habit) error

	// GetByID возвращает привычку по ID.
	// Возвращает ErrHabitNotFound, если привычка не найдена.
	GetByID(ctx context.Context, id string) (*Habit, error)

	// ListByUser возвращает привычки пользователя, упорядоченные по ID.
	ListByUser(ctx context.Context, userID string) ([]*Habit, error)

	// Update сохраняет привычку с проверкой версии и увеличивает h.Version.
	// Возвращает ErrHabitStale при расхождении версий.
	Update(ctx context.Context, h *Habit) error

	// HasCompletion проверяет наличие записи журнала за день.
	HasCompletion(ctx context.Context, habitID string, on shared.Date) (bool, error)

	// RecordCompletion атомарно добавляет запись журнала и сохраняет привычку
	// и пользователя (если u != nil) с проверкой обеих версий. Возвращает
	// ErrHabitCompletedToday, если запись за этот день уже есть. При любой
	// ошибке ничего не меняется.
	RecordCompletion(ctx context.Context, h *Habit, c Completion, u *user.Progress) error

	// ListCompletions возвращает последние записи журнала, новые первыми.
	ListCompletions(ctx context.Context, habitID string, limit int) ([]Completion, error)

	// SaveRedemption атомарно сохраняет привычку с активированным искуплением
	// и пользователя со списанной жизнью, проверяя версии обеих записей.
	SaveRedemption(ctx context.Context, h *Habit, u *user.Progress) error
}
