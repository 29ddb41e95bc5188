// Package clan содержит доменную модель клана: общий XP, уровень клана
// и вклад каждого участника. Вклады участников всегда в сумме дают XP клана.
package clan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/habituate/progression-engine/internal/domain/leveling"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// DefaultMaxMembers - лимит участников по умолчанию.
const DefaultMaxMembers = 50

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Role - роль участника в клане.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleLeader    Role = "leader"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Clan - группа пользователей с общим прогрессом.
// Инвариант: Level == leveling.Clan.LevelFromXP(TotalXP).
type Clan struct {
	// ID - идентификатор клана.
	ID string

	// Name - название.
	Name string

	// Description - описание.
	Description string

	// Icon - иконка.
	Icon string

	// OwnerID - создатель клана.
	OwnerID string

	// IsPrivate - вступление только по приглашению.
	IsPrivate bool

	// MaxMembers - лимит участников.
	MaxMembers int

	// TotalXP - сумма вкладов участников за всё время, только растёт.
	TotalXP int64

	// Level - уровень, производный от TotalXP.
	Level int

	// MemberCount - количество участников.
	MemberCount int

	// Version - версия записи для оптимистичной блокировки.
	Version int64

	// CreatedAt - время создания.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// Membership - участие пользователя в клане.
type Membership struct {
	// ClanID - клан.
	ClanID string

	// UserID - участник.
	UserID string

	// XPContributed - вклад с момента вступления, только растёт.
	XPContributed int64

	// Role - роль.
	Role Role

	// JoinedAt - время вступления.
	JoinedAt time.Time

	// Version - версия записи для оптимистичной блокировки.
	Version int64
}

// Clone возвращает независимую копию.
func (m *Membership) Clone() *Membership {
	c := *m
	return &c
}

// NewClanParams содержит параметры для создания клана.
type NewClanParams struct {
	ID          string
	Name        string
	Description string
	Icon        string
	OwnerID     string
	IsPrivate   bool
	MaxMembers  int
	Now         time.Time
}

// NewClan создаёт пустой клан первого уровня. Владелец вступает отдельно.
func NewClan(params NewClanParams) (*Clan, error) {
	if err := shared.ValidateID("clan", "clan id", params.ID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(params.Name)
	if len(name) == 0 || len(name) > 100 {
		return nil, shared.NewDomainError("clan", "Validate", shared.ErrValueOutOfRange, "name must be 1-100 chars")
	}

	maxMembers := params.MaxMembers
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	icon := params.Icon
	if icon == "" {
		icon = "🏰"
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &Clan{
		ID:          params.ID,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		Icon:        icon,
		OwnerID:     params.OwnerID,
		IsPrivate:   params.IsPrivate,
		MaxMembers:  maxMembers,
		Level:       1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// IsFull сообщает, достигнут ли лимит участников.
func (c *Clan) IsFull() bool {
	return c.MemberCount >= c.MaxMembers
}

// AddMember создаёт участие с нулевым вкладом и увеличивает MemberCount.
func (c *Clan) AddMember(userID string, now time.Time) (*Membership, error) {
	if err := shared.ValidateID("clan", "user id", userID); err != nil {
		return nil, err
	}
	if c.IsFull() {
		return nil, shared.ErrClanFull
	}

	role := RoleMember
	if userID == c.OwnerID {
		role = RoleLeader
	}

	c.MemberCount++
	c.UpdatedAt = now

	return &Membership{
		ClanID:   c.ID,
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
	}, nil
}

// Contribution - результат зачисления вклада.
type Contribution struct {
	Amount      int64
	OldTotal    int64
	NewTotal    int64
	OldLevel    int
	NewLevel    int
	MemberTotal int64
}

// LeveledUp сообщает, вырос ли уровень клана.
func (c Contribution) LeveledUp() bool {
	return c.NewLevel > c.OldLevel
}

// Contribute зачисляет amount одновременно в TotalXP клана и в вклад участника
// и пересчитывает уровень клана. Отрицательный вклад отклоняется.
func (c *Clan) Contribute(m *Membership, amount int64, now time.Time) (Contribution, error) {
	if m == nil || m.ClanID != c.ID {
		return Contribution{}, shared.ErrMembershipNotFound
	}
	if amount < 0 {
		return Contribution{}, shared.NewDomainError("clan", "Contribute", shared.ErrNegativeValue, "contribution cannot be negative")
	}

	res := Contribution{
		Amount:   amount,
		OldTotal: c.TotalXP,
		OldLevel: c.Level,
	}

	c.TotalXP += amount
	c.Level = leveling.Clan.LevelFromXP(c.TotalXP)
	c.UpdatedAt = now
	m.XPContributed += amount

	res.NewTotal = c.TotalXP
	res.NewLevel = c.Level
	res.MemberTotal = m.XPContributed
	return res, nil
}

// Reconcile пересчитывает уровень из TotalXP.
// Возвращает true, если запись была исправлена.
func (c *Clan) Reconcile() bool {
	if want := leveling.Clan.LevelFromXP(c.TotalXP); c.Level != want {
		c.Level = want
		return true
	}
	return false
}

// LevelProgress возвращает прогресс клана внутри уровня.
func (c *Clan) LevelProgress() leveling.Progress {
	return leveling.Clan.Progress(c.TotalXP)
}

// VerifyLedger проверяет, что вклады участников в сумме дают TotalXP.
func (c *Clan) VerifyLedger(members []*Membership) error {
	var sum int64
	for _, m := range members {
		sum += m.XPContributed
	}
	if sum != c.TotalXP {
		return shared.WrapError("clan", "VerifyLedger", shared.ErrInvariantViolation,
			"member contributions do not sum to clan total",
			fmt.Errorf("clan %s: total=%d sum=%d", c.ID, c.TotalXP, sum))
	}
	return nil
}

// TopContributors сортирует участников по вкладу (по убыванию) и берёт первые n.
func TopContributors(members []*Membership, n int) []*Membership {
	sorted := make([]*Membership, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].XPContributed != sorted[j].XPContributed {
			return sorted[i].XPContributed > sorted[j].XPContributed
		}
		return sorted[i].UserID < sorted[j].UserID
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Clone возвращает независимую копию.
func (c *Clan) Clone() *Clan {
	cp := *c
	return &cp
}
