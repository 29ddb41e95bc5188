// Package user содержит доменную модель прогресса пользователя:
// XP, уровень, накопленные очки, дополнительные жизни и членство в клане.
package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/habituate/progression-engine/internal/domain/leveling"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress - изменяемые счётчики пользователя.
// Инвариант: Level == leveling.User.LevelFromXP(XP) после каждой мутации.
type Progress struct {
	// ID - идентификатор пользователя.
	ID string

	// XP - текущий XP, не бывает отрицательным.
	XP int64

	// Level - уровень, производный от XP.
	Level int

	// TotalPoints - весь когда-либо начисленный XP, только растёт.
	TotalPoints int64

	// ExtraLives - количество дополнительных жизней.
	ExtraLives int

	// ClanID - клан пользователя, пустая строка если клана нет.
	ClanID string

	// Version - версия записи для оптимистичной блокировки.
	Version int64

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewProgressParams содержит параметры для создания записи прогресса.
type NewProgressParams struct {
	ID         string
	InitialXP  int64
	ExtraLives int
	ClanID     string
	Now        time.Time
}

// NewProgress создаёт запись прогресса с валидацией всех полей.
func NewProgress(params NewProgressParams) (*Progress, error) {
	if err := shared.ValidateID("user", "user id", params.ID); err != nil {
		return nil, err
	}
	if params.InitialXP < 0 {
		return nil, shared.NewDomainError("user", "Create", shared.ErrNegativeValue, "initial xp cannot be negative")
	}
	if params.ExtraLives < 0 {
		return nil, shared.NewDomainError("user", "Create", shared.ErrNegativeValue, "extra lives cannot be negative")
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &Progress{
		ID:          strings.TrimSpace(params.ID),
		XP:          params.InitialXP,
		Level:       leveling.User.LevelFromXP(params.InitialXP),
		TotalPoints: params.InitialXP,
		ExtraLives:  params.ExtraLives,
		ClanID:      strings.TrimSpace(params.ClanID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Validate проверяет инварианты записи.
func (p *Progress) Validate() error {
	switch {
	case p.XP < 0:
		return shared.NewDomainError("user", "Validate", shared.ErrInvariantViolation, "xp is negative")
	case p.ExtraLives < 0:
		return shared.NewDomainError("user", "Validate", shared.ErrInvariantViolation, "extra lives are negative")
	case p.Level != leveling.User.LevelFromXP(p.XP):
		return shared.ErrLevelDesync
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// Grant - результат применения начисления к записи.
type Grant struct {
	Amount   int64
	OldXP    int64
	NewXP    int64
	OldLevel int
	NewLevel int

	// Clamped - отрицательная корректировка упёрлась в 0.
	Clamped bool
}

// LevelsGained возвращает пройденные уровни по возрастанию.
func (g Grant) LevelsGained() []int {
	if g.NewLevel <= g.OldLevel {
		return nil
	}
	levels := make([]int, 0, g.NewLevel-g.OldLevel)
	for l := g.OldLevel + 1; l <= g.NewLevel; l++ {
		levels = append(levels, l)
	}
	return levels
}

// LeveledUp сообщает, вырос ли уровень.
func (g Grant) LeveledUp() bool {
	return g.NewLevel > g.OldLevel
}

// ApplyXP начисляет amount (может быть отрицательным для административных
// корректировок). XP не опускается ниже 0, TotalPoints учитывает только
// положительные начисления, уровень пересчитывается из XP.
func (p *Progress) ApplyXP(amount int64, now time.Time) Grant {
	g := Grant{
		Amount:   amount,
		OldXP:    p.XP,
		OldLevel: p.Level,
	}

	newXP := p.XP + amount
	if newXP < 0 {
		newXP = 0
		g.Clamped = true
	}

	p.XP = newXP
	p.Level = leveling.User.LevelFromXP(newXP)
	if amount > 0 {
		p.TotalPoints += amount
	}
	p.UpdatedAt = now

	g.NewXP = p.XP
	g.NewLevel = p.Level
	return g
}

// Reconcile пересчитывает уровень из XP, если сохранённое значение разошлось.
// Возвращает true, если запись была исправлена.
func (p *Progress) Reconcile() bool {
	corrected := false
	if p.XP < 0 {
		p.XP = 0
		corrected = true
	}
	if want := leveling.User.LevelFromXP(p.XP); p.Level != want {
		p.Level = want
		corrected = true
	}
	if p.ExtraLives < 0 {
		p.ExtraLives = 0
		corrected = true
	}
	return corrected
}

// LevelProgress возвращает прогресс внутри текущего уровня.
func (p *Progress) LevelProgress() leveling.Progress {
	return leveling.User.Progress(p.XP)
}

// GrantExtraLife добавляет одну дополнительную жизнь.
func (p *Progress) GrantExtraLife(now time.Time) {
	p.ExtraLives++
	p.UpdatedAt = now
}

// ConsumeExtraLife списывает одну жизнь.
// Возвращает ErrNoLivesLeft, если жизней нет.
func (p *Progress) ConsumeExtraLife(now time.Time) error {
	if p.ExtraLives <= 0 {
		return shared.ErrNoLivesLeft
	}
	p.ExtraLives--
	p.UpdatedAt = now
	return nil
}

// HasClan сообщает, состоит ли пользователь в клане.
func (p *Progress) HasClan() bool {
	return p.ClanID != ""
}

// JoinClan привязывает пользователя к клану.
func (p *Progress) JoinClan(clanID string, now time.Time) error {
	if p.HasClan() {
		return shared.ErrAlreadyInClan
	}
	if err := shared.ValidateID("clan", "clan id", clanID); err != nil {
		return err
	}
	p.ClanID = clanID
	p.UpdatedAt = now
	return nil
}

// String возвращает краткое описание для логов.
func (p *Progress) String() string {
	return fmt.Sprintf("user{id=%s xp=%d level=%d lives=%d clan=%q v=%d}",
		p.ID, p.XP, p.Level, p.ExtraLives, p.ClanID, p.Version)
}

// Clone возвращает независимую копию.
func (p *Progress) Clone() *Progress {
	c := *p
	return &c
}
