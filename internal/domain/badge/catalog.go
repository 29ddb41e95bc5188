// Package badge содержит фиксированный каталог значков и правила их выдачи.
// Каталог задаётся при сборке и не редактируется пользователями.
package badge

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Type - категория значка. Каждая категория сравнивается со своим показателем.
type Type string

const (
	TypeStreak     Type = "streak"
	TypeCompletion Type = "completion"
	TypeLevel      Type = "level"
	TypeSocial     Type = "social"
	TypeClan       Type = "clan"
	TypeSpecial    Type = "special"
)

// IsValid проверяет, что категория известна.
func (t Type) IsValid() bool {
	switch t {
	case TypeStreak, TypeCompletion, TypeLevel, TypeSocial, TypeClan, TypeSpecial:
		return true
	}
	return false
}

// Rarity - редкость значка.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Definition - неизменяемая запись каталога.
type Definition struct {
	// ID - стабильный ключ, производный от имени ("century-club").
	ID string

	// Name - отображаемое имя, уникально в каталоге.
	Name string

	// Description - описание условия.
	Description string

	// Icon - иконка.
	Icon string

	// Type - категория.
	Type Type

	// Rarity - редкость.
	Rarity Rarity

	// Requirement - порог показателя категории.
	Requirement int64

	// XPReward - награда в XP. Сообщается вызывающему, но не начисляется.
	XPReward int64
}

// UserBadge - полученный пользователем значок. Пара (UserID, BadgeID) уникальна.
type UserBadge struct {
	ID       string
	UserID   string
	BadgeID  string
	EarnedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func def(name, description, icon string, t Type, r Rarity, requirement, reward int64) Definition {
	return Definition{
		ID:          Slug(name),
		Name:        name,
		Description: description,
		Icon:        icon,
		Type:        t,
		Rarity:      r,
		Requirement: requirement,
		XPReward:    reward,
	}
}

var catalog = []Definition{
	def("First Steps", "Complete your first habit", "🎯", TypeStreak, RarityCommon, 1, 10),
	def("Week Warrior", "Maintain a 7-day streak", "🔥", TypeStreak, RarityCommon, 7, 25),
	def("Monthly Master", "Maintain a 30-day streak", "💪", TypeStreak, RarityRare, 30, 100),
	def("Century Club", "Reach 100-day streak", "💎", TypeStreak, RarityEpic, 100, 500),
	def("Legendary Streak", "Maintain a 365-day streak", "👑", TypeStreak, RarityLegendary, 365, 1000),

	def("Habit Starter", "Complete 10 habits", "⭐", TypeCompletion, RarityCommon, 10, 20),
	def("Habit Builder", "Complete 50 habits", "🌟", TypeCompletion, RarityRare, 50, 75),
	def("Habit Master", "Complete 100 habits", "✨", TypeCompletion, RarityEpic, 100, 200),

	def("Novice", "Reach level 5", "🥉", TypeLevel, RarityCommon, 5, 50),
	def("Expert", "Reach level 10", "🥈", TypeLevel, RarityRare, 10, 100),
	def("Elite", "Reach level 20", "🥇", TypeLevel, RarityEpic, 20, 250),

	def("Team Player", "Join a clan", "🤝", TypeSocial, RarityCommon, 1, 15),

	def("Clan Contributor", "Contribute 500 XP to clan", "🏆", TypeClan, RarityRare, 500, 100),
	def("Clan Legend", "Contribute 5000 XP to clan", "👑", TypeClan, RarityLegendary, 5000, 500),

	def("Perfectionist", "Complete all habits for 30 days", "💯", TypeSpecial, RarityEpic, 30, 300),
}

// Имена значков, на которые движок ссылается напрямую.
const (
	CenturyClub   = "Century Club"
	TeamPlayer    = "Team Player"
	Perfectionist = "Perfectionist"
)

// Catalog возвращает копию каталога в порядке объявления.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// ByName ищет значок по имени без учёта регистра.
func ByName(name string) (Definition, bool) {
	id := Slug(name)
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// ByID ищет значок по ключу.
func ByID(id string) (Definition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Slug переводит имя в ключ: "Century Club" -> "century-club".
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
