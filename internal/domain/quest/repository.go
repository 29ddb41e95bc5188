package quest

import (
	"context"

	"github.com/habituate/progression-engine/internal/domain/user"
)

// Repository определяет операции хранения заданий пользователей.
type Repository interface {
	// Create сохраняет выданное задание.
	// Возвращает ErrQuestAssigned, если тройка (пользователь, задание, период)
	// уже есть.
	Create(ctx context.Context, q *UserQuest) error

	// GetByID возвращает задание или ErrQuestNotFound.
	GetByID(ctx context.Context, id string) (*UserQuest, error)

	// ListByUser возвращает задания пользователя со статусом status
	// (пустой статус - все), упорядоченные по периоду и QuestID.
	ListByUser(ctx context.Context, userID string, status Status) ([]*UserQuest, error)

	// Update сохраняет задание с проверкой версии и увеличивает q.Version.
	// Возвращает ErrQuestStale при расхождении версий.
	Update(ctx context.Context, q *UserQuest) error

	// SaveCompletion атомарно сохраняет закрытое задание и пользователя
	// с начисленной наградой, проверяя версии обеих записей.
	SaveCompletion(ctx context.Context, q *UserQuest, u *user.Progress) error
}
