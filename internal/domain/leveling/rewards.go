package leveling

import "fmt"

// MilestoneEvery - каждый N-й уровень приносит бонус XP.
const MilestoneEvery = 5

// BonusPerLevel - множитель бонуса на уровне-вехе (бонус = уровень * 10).
const BonusPerLevel = 10

// Rewards - награды за достижение уровня. Бонус XP носит информационный
// характер и начисляется, только если это явно включено в конфигурации.
type Rewards struct {
	// Level - уровень, за который выдаются награды.
	Level int `json:"level"`

	// BonusXP - бонус на уровне-вехе, 0 для обычных уровней.
	BonusXP int64 `json:"bonus_xp"`

	// Title - звание, открываемое на уровне (может быть пустым).
	Title string `json:"title,omitempty"`

	// BadgeLabel - метка вехи, например "Level 10 Master".
	BadgeLabel string `json:"badge_label,omitempty"`

	// Unlocks - открываемые возможности.
	Unlocks []string `json:"unlocks,omitempty"`
}

// IsMilestone сообщает, даёт ли уровень бонус XP.
func (r Rewards) IsMilestone() bool {
	return r.BonusXP > 0
}

// specialLevels - уровни со званиями.
var specialLevels = map[int]struct {
	title  string
	unlock string
}{
	10: {title: "Apprentice", unlock: "Custom avatar frames"},
	15: {title: "Journeyman", unlock: "Special emotes"},
	20: {title: "Master", unlock: "Elite clan features"},
}

// RewardsFor возвращает награды за уровень.
func RewardsFor(level int) Rewards {
	r := Rewards{Level: level}

	if level > 0 && level%MilestoneEvery == 0 {
		r.BonusXP = int64(level) * BonusPerLevel
		r.BadgeLabel = fmt.Sprintf("Level %d Master", level)
	}

	if s, ok := specialLevels[level]; ok {
		r.Title = s.title
		r.Unlocks = []string{s.unlock}
	}

	return r
}
