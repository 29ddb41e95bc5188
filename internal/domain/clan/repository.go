package clan

import (
	"context"

	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения кланов и участников.
type Repository interface {
	// Create сохраняет новый клан.
	// Возвращает ErrClanAlreadyExists, если клан уже существует.
	Create(ctx context.Context, c *Clan) error

	// GetByID возвращает клан по ID.
	// Возвращает ErrClanNotFound, если клан не найден.
	GetByID(ctx context.Context, id string) (*Clan, error)

	// List возвращает кланы, упорядоченные по ID.
	List(ctx context.Context, opts user.ListOptions) ([]*Clan, error)

	// GetMembership возвращает участие пользователя в клане.
	// Возвращает ErrMembershipNotFound, если участия нет.
	GetMembership(ctx context.Context, clanID, userID string) (*Membership, error)

	// ListMembers возвращает участников клана.
	ListMembers(ctx context.Context, clanID string) ([]*Membership, error)

	// AddMember атомарно создаёт участие, сохраняет клан с новым MemberCount
	// и пользователя с привязкой к клану, проверяя версии клана и пользователя.
	AddMember(ctx context.Context, c *Clan, m *Membership, u *user.Progress) error

	// SaveContribution атомарно сохраняет клан и вклад участника,
	// проверяя версии обеих записей. Возвращает ErrClanStale при конфликте.
	SaveContribution(ctx context.Context, c *Clan, m *Membership) error
}
