// Package leveling содержит кривые уровней: отображение накопленного XP в уровень
// и обратно. Функции пакета чистые и тотальные - они вызываются на каждом чтении.
package leveling

import (
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLD TABLES
// ══════════════════════════════════════════════════════════════════════════════

// userThresholds - порог XP для уровней 1..20 пользователя (уровень 1 = 0 XP).
var userThresholds = []int64{
	0, 200, 400, 800, 1200, 1800, 2600, 3600, 4800, 6200,
	8000, 10000, 12500, 15000, 18000, 22000, 27000, 33000, 40000, 50000,
}

// clanThresholds - пороги клана, примерно в 5 раз выше пользовательских,
// так как XP клана складывается из вкладов нескольких участников.
var clanThresholds = []int64{
	0, 500, 1000, 2000, 3000, 4500, 6500, 9000, 12000, 15500,
	20000, 25000, 31250, 37500, 45000, 55000, 67500, 82500, 100000, 125000,
}

var (
	// User - кривая уровней пользователя.
	User = MustCurve(userThresholds)

	// Clan - кривая уровней клана.
	Clan = MustCurve(clanThresholds)
)

// ══════════════════════════════════════════════════════════════════════════════
// CURVE
// ══════════════════════════════════════════════════════════════════════════════

// Curve - возрастающая таблица порогов XP, индексированная уровнем.
// За последним табличным уровнем пороги продолжаются линейно с шагом,
// равным разнице двух последних порогов, поэтому потолка уровня нет.
type Curve struct {
	thresholds []int64
	gap        int64
}

// NewCurve создаёт кривую по таблице порогов.
// Таблица должна начинаться с 0, содержать минимум два уровня и строго возрастать.
func NewCurve(thresholds []int64) (*Curve, error) {
	if len(thresholds) < 2 {
		return nil, fmt.Errorf("leveling: need at least 2 thresholds, got %d", len(thresholds))
	}
	if thresholds[0] != 0 {
		return nil, fmt.Errorf("leveling: level 1 threshold must be 0, got %d", thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, fmt.Errorf("leveling: thresholds must strictly increase at level %d", i+1)
		}
	}

	t := make([]int64, len(thresholds))
	copy(t, thresholds)
	n := len(t)

	return &Curve{thresholds: t, gap: t[n-1] - t[n-2]}, nil
}

// MustCurve как NewCurve, но паникует на невалидной таблице.
func MustCurve(thresholds []int64) *Curve {
	c, err := NewCurve(thresholds)
	if err != nil {
		panic(err)
	}
	return c
}

// MaxTabulatedLevel возвращает последний уровень из таблицы.
func (c *Curve) MaxTabulatedLevel() int {
	return len(c.thresholds)
}

// Gap возвращает шаг экстраполяции за пределами таблицы.
func (c *Curve) Gap() int64 {
	return c.gap
}

// LevelFromXP возвращает наивысший уровень, порог которого не превышает xp.
// Отрицательный XP даёт уровень 1.
func (c *Curve) LevelFromXP(xp int64) int {
	if xp <= 0 {
		return 1
	}

	last := c.thresholds[len(c.thresholds)-1]
	if xp >= last {
		extra := (xp - last) / c.gap
		if extra > int64(math.MaxInt32) {
			extra = math.MaxInt32
		}
		return c.MaxTabulatedLevel() + int(extra)
	}

	// Бинарный поиск первого порога > xp.
	lo, hi := 0, len(c.thresholds)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.thresholds[mid] <= xp {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// XPForLevel возвращает порог XP для уровня. Уровни ниже 1 дают 0.
func (c *Curve) XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= len(c.thresholds) {
		return c.thresholds[level-1]
	}

	last := c.thresholds[len(c.thresholds)-1]
	steps := int64(level - len(c.thresholds))
	if steps > (math.MaxInt64-last)/c.gap {
		return math.MaxInt64
	}
	return last + c.gap*steps
}

// LevelsCrossed возвращает уровни, пройденные при переходе oldXP -> newXP,
// в порядке возрастания. Пустой срез, если уровень не вырос.
func (c *Curve) LevelsCrossed(oldXP, newXP int64) []int {
	from, to := c.LevelFromXP(oldXP), c.LevelFromXP(newXP)
	if to <= from {
		return nil
	}
	levels := make([]int, 0, to-from)
	for l := from + 1; l <= to; l++ {
		levels = append(levels, l)
	}
	return levels
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress - детальный прогресс внутри текущего уровня.
type Progress struct {
	// CurrentLevel - текущий уровень.
	CurrentLevel int `json:"current_level"`

	// NextLevel - следующий уровень.
	NextLevel int `json:"next_level"`

	// CurrentXP - накопленный XP.
	CurrentXP int64 `json:"current_xp"`

	// CurrentThreshold - порог текущего уровня.
	CurrentThreshold int64 `json:"current_threshold"`

	// NextThreshold - порог следующего уровня.
	NextThreshold int64 `json:"next_threshold"`

	// XPIntoLevel - XP, набранный сверх порога текущего уровня.
	XPIntoLevel int64 `json:"xp_into_level"`

	// XPNeededForNext - сколько XP осталось до следующего уровня.
	XPNeededForNext int64 `json:"xp_needed_for_next"`

	// XPRequiredForLevel - ширина текущего уровня в XP.
	XPRequiredForLevel int64 `json:"xp_required_for_level"`

	// PercentComplete - процент прохождения уровня, от 0 до 100, с точностью 0.01.
	PercentComplete float64 `json:"percent_complete"`
}

// Progress вычисляет прогресс для xp.
func (c *Curve) Progress(xp int64) Progress {
	if xp < 0 {
		xp = 0
	}

	level := c.LevelFromXP(xp)
	cur := c.XPForLevel(level)
	next := c.XPForLevel(level + 1)
	span := next - cur
	into := xp - cur

	p := Progress{
		CurrentLevel:       level,
		NextLevel:          level + 1,
		CurrentXP:          xp,
		CurrentThreshold:   cur,
		NextThreshold:      next,
		XPIntoLevel:        into,
		XPNeededForNext:    next - xp,
		XPRequiredForLevel: span,
	}

	// Следующего порога нет (переполнение) - уровень считается пройденным.
	if span <= 0 {
		p.NextLevel = level
		p.NextThreshold = cur
		p.XPNeededForNext = 0
		p.XPRequiredForLevel = 0
		p.PercentComplete = 100
		return p
	}

	pct := float64(into) / float64(span) * 100
	p.PercentComplete = clampPercent(math.Round(pct*100) / 100)
	return p
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
