package user

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения прогресса пользователей.
type Repository interface {
	// Create сохраняет новую запись.
	// Возвращает ErrUserAlreadyExists, если запись уже существует.
	Create(ctx context.Context, p *Progress) error

	// GetByID возвращает запись по ID.
	// Возвращает ErrUserNotFound, если запись не найдена.
	GetByID(ctx context.Context, id string) (*Progress, error)

	// Update сохраняет запись, если её версия в хранилище равна p.Version,
	// и увеличивает p.Version. Возвращает ErrUserStale при расхождении версий.
	Update(ctx context.Context, p *Progress) error

	// List возвращает записи, упорядоченные по ID.
	List(ctx context.Context, opts ListOptions) ([]*Progress, error)
}

// ListOptions - параметры пагинации.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 100}
}
