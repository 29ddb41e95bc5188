package badge

import (
	"math"
	"sort"
	"time"
)

// InProgressRatio - доля порога, начиная с которой значок считается "в процессе".
const InProgressRatio = 0.5

// Snapshot - агрегированный прогресс пользователя для проверки значков.
type Snapshot struct {
	// MaxStreak - максимальная текущая серия среди привычек.
	MaxStreak int

	// TotalCompletions - сумма выполнений по всем привычкам.
	TotalCompletions int

	// Level - текущий уровень.
	Level int

	// InClan - пользователь состоит в клане.
	InClan bool

	// ClanContribution - вклад пользователя в XP клана.
	ClanContribution int64
}

// ValueFor возвращает показатель для категории.
// Для специальных значков показателя нет - они выдаются только явно.
func (s Snapshot) ValueFor(t Type) (int64, bool) {
	switch t {
	case TypeStreak:
		return int64(s.MaxStreak), true
	case TypeCompletion:
		return int64(s.TotalCompletions), true
	case TypeLevel:
		return int64(s.Level), true
	case TypeSocial:
		if s.InClan {
			return 1, true
		}
		return 0, true
	case TypeClan:
		if !s.InClan {
			return 0, true
		}
		return s.ClanContribution, true
	}
	return 0, false
}

// EarnedSet - множество полученных значков по BadgeID.
type EarnedSet map[string]time.Time

// NewEarnedSet строит множество из списка.
func NewEarnedSet(earned []UserBadge) EarnedSet {
	set := make(EarnedSet, len(earned))
	for _, ub := range earned {
		set[ub.BadgeID] = ub.EarnedAt
	}
	return set
}

// Has проверяет наличие значка.
func (e EarnedSet) Has(badgeID string) bool {
	_, ok := e[badgeID]
	return ok
}

// Eligible возвращает значки, условие которых выполнено, но которые ещё
// не получены. Если types пуст, проверяются все категории.
// Порядок совпадает с порядком каталога.
func Eligible(s Snapshot, earned EarnedSet, types ...Type) []Definition {
	filter := make(map[Type]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}

	var out []Definition
	for _, d := range catalog {
		if len(filter) > 0 && !filter[d.Type] {
			continue
		}
		if earned.Has(d.ID) {
			continue
		}
		v, ok := s.ValueFor(d.Type)
		if !ok || v < d.Requirement {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS VIEW
// ══════════════════════════════════════════════════════════════════════════════

// Earned - полученный значок с датой.
type Earned struct {
	Definition
	EarnedAt time.Time
}

// Pending - неполученный значок с текущим показателем.
type Pending struct {
	Definition
	Current         int64
	PercentComplete float64
}

// ProgressView - разбивка каталога для интерфейса. Состояния не хранит.
type ProgressView struct {
	Earned     []Earned
	InProgress []Pending
	Locked     []Pending
}

// BuildProgress раскладывает каталог на полученные, "в процессе"
// (показатель не меньше половины порога) и закрытые значки.
func BuildProgress(s Snapshot, earned EarnedSet) ProgressView {
	view := ProgressView{
		Earned:     make([]Earned, 0),
		InProgress: make([]Pending, 0),
		Locked:     make([]Pending, 0),
	}

	for _, d := range catalog {
		if at, ok := earned[d.ID]; ok {
			view.Earned = append(view.Earned, Earned{Definition: d, EarnedAt: at})
			continue
		}

		current, _ := s.ValueFor(d.Type)
		p := Pending{Definition: d, Current: current}
		if d.Requirement > 0 {
			pct := float64(current) / float64(d.Requirement) * 100
			p.PercentComplete = math.Min(100, math.Round(pct*100)/100)
		}

		if float64(current) >= float64(d.Requirement)*InProgressRatio {
			view.InProgress = append(view.InProgress, p)
		} else {
			view.Locked = append(view.Locked, p)
		}
	}

	sort.SliceStable(view.Earned, func(i, j int) bool {
		return view.Earned[i].EarnedAt.Before(view.Earned[j].EarnedAt)
	})

	return view
}
