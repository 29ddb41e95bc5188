package user

import (
	"context"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// Load читает запись и, если уровень разошёлся с XP, пересчитывает его и
// сохраняет исправление. Второе значение - была ли запись исправлена.
//
// Конфликт версии при сохранении исправления не считается ошибкой: запись
// перечитывается, и вызывающий получает свежее состояние.
func Load(ctx context.Context, repo Repository, id string) (*Progress, bool, error) {
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !p.Reconcile() {
		return p, false, nil
	}

	if err := repo.Update(ctx, p); err != nil {
		if !shared.IsConflict(err) {
			return nil, true, err
		}
		fresh, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, true, err
		}
		fresh.Reconcile()
		return fresh, true, nil
	}
	return p, true, nil
}
