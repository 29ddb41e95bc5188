package badge

import "context"

// Repository определяет операции хранения каталога и полученных значков.
type Repository interface {
	// EnsureCatalog добавляет отсутствующие определения и обновляет существующие.
	EnsureCatalog(ctx context.Context, defs []Definition) error

	// ListDefinitions возвращает сохранённый каталог.
	ListDefinitions(ctx context.Context) ([]Definition, error)

	// ListEarned возвращает значки пользователя.
	ListEarned(ctx context.Context, userID string) ([]UserBadge, error)

	// Award добавляет значок пользователю.
	// Возвращает ErrBadgeEarned, если пара (пользователь, значок) уже есть;
	// дубликатов не создаётся.
	Award(ctx context.Context, ub UserBadge) error
}
