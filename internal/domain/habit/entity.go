// Package habit содержит доменную модель привычки: серию выполнений (streak),
// расчёт XP за выполнение и правила дополнительных жизней.
package habit

import (
	"fmt"
	"strings"
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty - сложность привычки, определяет множитель XP.
type Difficulty string

const (
	// DifficultyEasy - множитель 1.0.
	DifficultyEasy Difficulty = "easy"

	// DifficultyMedium - множитель 1.5, значение по умолчанию.
	DifficultyMedium Difficulty = "medium"

	// DifficultyHard - множитель 2.0.
	DifficultyHard Difficulty = "hard"
)

// IsValid проверяет, что сложность известна.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// multiplierPercent возвращает множитель в сотых долях.
func (d Difficulty) multiplierPercent() int64 {
	switch d {
	case DifficultyEasy:
		return 100
	case DifficultyHard:
		return 200
	default:
		return 150
	}
}

// Multiplier возвращает множитель XP.
func (d Difficulty) Multiplier() float64 {
	return float64(d.multiplierPercent()) / 100
}

// ParseDifficulty разбирает строку; пустая строка даёт DifficultyMedium.
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DifficultyMedium, nil
	}
	d := Difficulty(s)
	if !d.IsValid() {
		return "", shared.ErrInvalidDifficulty
	}
	return d, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: HABIT
// ══════════════════════════════════════════════════════════════════════════════

// Habit - привычка пользователя и её счётчики.
// Инварианты: 0 <= Streak <= BestStreak, TotalCompletions >= 0,
// не более одного выполнения за календарный день.
type Habit struct {
	// ID - идентификатор привычки.
	ID string

	// UserID - владелец привычки.
	UserID string

	// Title - название.
	Title string

	// Difficulty - сложность.
	Difficulty Difficulty

	// Streak - текущая серия дней подряд.
	Streak int

	// BestStreak - лучшая серия, только растёт.
	BestStreak int

	// TotalCompletions - всего выполнений, только растёт.
	TotalCompletions int

	// LastCompleted - дата последнего выполнения, нулевая если выполнений не было.
	LastCompleted shared.Date

	// UsedExtraLife - на привычке активировано искупление пропуска.
	UsedExtraLife bool

	// ExtraLifeDate - дата, восстановленная искуплением.
	ExtraLifeDate shared.Date

	// MissedDays - пропущенные дни, зафиксированные последней проверкой.
	MissedDays int

	// ExtraLifeGranted - жизнь за эту привычку уже выдана (разовая награда).
	ExtraLifeGranted bool

	// Version - версия записи для оптимистичной блокировки.
	Version int64

	// CreatedAt - время создания.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewHabitParams содержит параметры для создания привычки.
type NewHabitParams struct {
	ID         string
	UserID     string
	Title      string
	Difficulty Difficulty
	Now        time.Time
}

// NewHabit создаёт привычку без истории выполнений.
func NewHabit(params NewHabitParams) (*Habit, error) {
	if err := shared.ValidateID("habit", "habit id", params.ID); err != nil {
		return nil, err
	}
	if err := shared.ValidateID("habit", "user id", params.UserID); err != nil {
		return nil, err
	}

	difficulty := params.Difficulty
	if difficulty == "" {
		difficulty = DifficultyMedium
	}
	if !difficulty.IsValid() {
		return nil, shared.ErrInvalidDifficulty
	}

	title := strings.TrimSpace(params.Title)
	if len(title) > 200 {
		return nil, shared.NewDomainError("habit", "Validate", shared.ErrValueOutOfRange, "title must be at most 200 chars")
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &Habit{
		ID:         params.ID,
		UserID:     params.UserID,
		Title:      title,
		Difficulty: difficulty,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Validate проверяет инварианты привычки.
func (h *Habit) Validate() error {
	switch {
	case h.Streak < 0:
		return shared.NewDomainError("habit", "Validate", shared.ErrInvariantViolation, "streak is negative")
	case h.BestStreak < h.Streak:
		return shared.NewDomainError("habit", "Validate", shared.ErrInvariantViolation, "best streak is below current streak")
	case h.TotalCompletions < 0:
		return shared.NewDomainError("habit", "Validate", shared.ErrInvariantViolation, "total completions are negative")
	case !h.Difficulty.IsValid():
		return shared.ErrInvalidDifficulty
	}
	return nil
}

// BelongsTo проверяет владельца привычки.
func (h *Habit) BelongsTo(userID string) bool {
	return h.UserID == userID
}

// String возвращает краткое описание для логов.
func (h *Habit) String() string {
	return fmt.Sprintf("habit{id=%s user=%s streak=%d best=%d last=%s v=%d}",
		h.ID, h.UserID, h.Streak, h.BestStreak, h.LastCompleted, h.Version)
}

// Clone возвращает независимую копию.
func (h *Habit) Clone() *Habit {
	c := *h
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION LOG
// ══════════════════════════════════════════════════════════════════════════════

// Completion - запись журнала выполнений, уникальна по (HabitID, On).
type Completion struct {
	ID          string
	HabitID     string
	UserID      string
	On          shared.Date
	XPEarned    int64
	Notes       string
	CompletedAt time.Time
}
