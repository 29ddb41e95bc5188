// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every progression mutation emits one of these once it has
// been persisted; subscribers (telemetry, leaderboards) must never affect the mutation.
const (
	// Progress events
	EventXPAwarded      EventType = "progress.xp_awarded"
	EventLevelUp        EventType = "progress.level_up"
	EventMilestoneBonus EventType = "progress.milestone_bonus"

	// Habit events
	EventHabitCompleted EventType = "habit.completed"
	EventStreakBroken   EventType = "habit.streak_broken"

	// Extra life events
	EventExtraLifeAwarded EventType = "extra_life.awarded"
	EventExtraLifeUsed    EventType = "extra_life.used"

	// Badge events
	EventBadgeEarned EventType = "badge.earned"

	// Clan events
	EventClanXPContributed EventType = "clan.xp_contributed"
	EventClanLevelUp       EventType = "clan.level_up"
	EventClanMemberJoined  EventType = "clan.member_joined"

	// Quest events
	EventQuestCompleted EventType = "quest.completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given time.
// A zero time is replaced with time.Now().
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted after a grant has been applied to a user.
type XPAwardedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
	NewXP    int64  `json:"new_xp"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"amount":    e.Amount,
		"reason":    e.Reason,
		"new_xp":    e.NewXP,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID string, amount int64, reason string, newXP int64, oldLevel, newLevel int, at time.Time) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: NewBaseEvent(EventXPAwarded, userID, at),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		NewXP:     newXP,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// LevelUpEvent is emitted once per level crossed, in ascending order.
type LevelUpEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Level  int    `json:"level"`
	Title  string `json:"title,omitempty"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"level":   e.Level,
		"title":   e.Title,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, level int, title string, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		UserID:    userID,
		Level:     level,
		Title:     title,
	}
}

// MilestoneBonusEvent is emitted when a user reaches a level that carries a bonus.
type MilestoneBonusEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	Level   int    `json:"level"`
	BonusXP int64  `json:"bonus_xp"`
	Granted bool   `json:"granted"`
}

// Payload implements Event interface.
func (e MilestoneBonusEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"level":    e.Level,
		"bonus_xp": e.BonusXP,
		"granted":  e.Granted,
	}
}

// NewMilestoneBonusEvent creates a new MilestoneBonusEvent.
func NewMilestoneBonusEvent(userID string, level int, bonus int64, granted bool, at time.Time) MilestoneBonusEvent {
	return MilestoneBonusEvent{
		BaseEvent: NewBaseEvent(EventMilestoneBonus, userID, at),
		UserID:    userID,
		Level:     level,
		BonusXP:   bonus,
		Granted:   granted,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Habit Events
// ═══════════════════════════════════════════════════════════════════════════

// HabitCompletedEvent is emitted after a completion has been logged.
type HabitCompletedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	HabitID     string `json:"habit_id"`
	Streak      int    `json:"streak"`
	BestStreak  int    `json:"best_streak"`
	XPEarned    int64  `json:"xp_earned"`
	CompletedOn Date   `json:"completed_on"`
}

// Payload implements Event interface.
func (e HabitCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"habit_id":     e.HabitID,
		"streak":       e.Streak,
		"best_streak":  e.BestStreak,
		"xp_earned":    e.XPEarned,
		"completed_on": e.CompletedOn.String(),
	}
}

// NewHabitCompletedEvent creates a new HabitCompletedEvent.
func NewHabitCompletedEvent(userID, habitID string, streak, best int, xp int64, on Date, at time.Time) HabitCompletedEvent {
	return HabitCompletedEvent{
		BaseEvent:   NewBaseEvent(EventHabitCompleted, habitID, at),
		UserID:      userID,
		HabitID:     habitID,
		Streak:      streak,
		BestStreak:  best,
		XPEarned:    xp,
		CompletedOn: on,
	}
}

// StreakBrokenEvent is emitted by the missed-day scan when a habit's streak lapses.
type StreakBrokenEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	HabitID    string `json:"habit_id"`
	DaysMissed int    `json:"days_missed"`
	Streak     int    `json:"streak"`
	CanRedeem  bool   `json:"can_redeem"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"habit_id":    e.HabitID,
		"days_missed": e.DaysMissed,
		"streak":      e.Streak,
		"can_redeem":  e.CanRedeem,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID, habitID string, daysMissed, streak int, canRedeem bool, at time.Time) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:  NewBaseEvent(EventStreakBroken, habitID, at),
		UserID:     userID,
		HabitID:    habitID,
		DaysMissed: daysMissed,
		Streak:     streak,
		CanRedeem:  canRedeem,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Extra Life Events
// ═══════════════════════════════════════════════════════════════════════════

// ExtraLifeAwardedEvent is emitted when a habit first reaches the extra-life threshold.
type ExtraLifeAwardedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	HabitID    string `json:"habit_id"`
	Streak     int    `json:"streak"`
	ExtraLives int    `json:"extra_lives"`
}

// Payload implements Event interface.
func (e ExtraLifeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"habit_id":    e.HabitID,
		"streak":      e.Streak,
		"extra_lives": e.ExtraLives,
	}
}

// NewExtraLifeAwardedEvent creates a new ExtraLifeAwardedEvent.
func NewExtraLifeAwardedEvent(userID, habitID string, streak, lives int, at time.Time) ExtraLifeAwardedEvent {
	return ExtraLifeAwardedEvent{
		BaseEvent:  NewBaseEvent(EventExtraLifeAwarded, userID, at),
		UserID:     userID,
		HabitID:    habitID,
		Streak:     streak,
		ExtraLives: lives,
	}
}

// ExtraLifeUsedEvent is emitted after an extra life has been redeemed on a habit.
type ExtraLifeUsedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	HabitID      string `json:"habit_id"`
	RestoredDate Date   `json:"restored_date"`
	Remaining    int    `json:"remaining"`
}

// Payload implements Event interface.
func (e ExtraLifeUsedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"habit_id":      e.HabitID,
		"restored_date": e.RestoredDate.String(),
		"remaining":     e.Remaining,
	}
}

// NewExtraLifeUsedEvent creates a new ExtraLifeUsedEvent.
func NewExtraLifeUsedEvent(userID, habitID string, restored Date, remaining int, at time.Time) ExtraLifeUsedEvent {
	return ExtraLifeUsedEvent{
		BaseEvent:    NewBaseEvent(EventExtraLifeUsed, userID, at),
		UserID:       userID,
		HabitID:      habitID,
		RestoredDate: restored,
		Remaining:    remaining,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEarnedEvent is emitted once per (user, badge) pair.
type BadgeEarnedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	BadgeName string `json:"badge_name"`
	BadgeType string `json:"badge_type"`
	Rarity    string `json:"rarity"`
	XPReward  int64  `json:"xp_reward"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"badge_name": e.BadgeName,
		"badge_type": e.BadgeType,
		"rarity":     e.Rarity,
		"xp_reward":  e.XPReward,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(userID, name, badgeType, rarity string, reward int64, at time.Time) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent: NewBaseEvent(EventBadgeEarned, userID, at),
		UserID:    userID,
		BadgeName: name,
		BadgeType: badgeType,
		Rarity:    rarity,
		XPReward:  reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Clan Events
// ═══════════════════════════════════════════════════════════════════════════

// ClanXPContributedEvent is emitted for every grant forwarded to a clan.
type ClanXPContributedEvent struct {
	BaseEvent
	ClanID        string `json:"clan_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	ClanTotalXP   int64  `json:"clan_total_xp"`
	MemberTotalXP int64  `json:"member_total_xp"`
	ClanLevel     int    `json:"clan_level"`
}

// Payload implements Event interface.
func (e ClanXPContributedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"clan_id":         e.ClanID,
		"user_id":         e.UserID,
		"amount":          e.Amount,
		"clan_total_xp":   e.ClanTotalXP,
		"member_total_xp": e.MemberTotalXP,
		"clan_level":      e.ClanLevel,
	}
}

// NewClanXPContributedEvent creates a new ClanXPContributedEvent.
func NewClanXPContributedEvent(clanID, userID string, amount, clanTotal, memberTotal int64, level int, at time.Time) ClanXPContributedEvent {
	return ClanXPContributedEvent{
		BaseEvent:     NewBaseEvent(EventClanXPContributed, clanID, at),
		ClanID:        clanID,
		UserID:        userID,
		Amount:        amount,
		ClanTotalXP:   clanTotal,
		MemberTotalXP: memberTotal,
		ClanLevel:     level,
	}
}

// ClanLevelUpEvent is emitted when a contribution raises the clan level.
type ClanLevelUpEvent struct {
	BaseEvent
	ClanID      string `json:"clan_id"`
	OldLevel    int    `json:"old_level"`
	NewLevel    int    `json:"new_level"`
	TriggeredBy string `json:"triggered_by"`
}

// Payload implements Event interface.
func (e ClanLevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"clan_id":      e.ClanID,
		"old_level":    e.OldLevel,
		"new_level":    e.NewLevel,
		"triggered_by": e.TriggeredBy,
	}
}

// NewClanLevelUpEvent creates a new ClanLevelUpEvent.
func NewClanLevelUpEvent(clanID string, oldLevel, newLevel int, userID string, at time.Time) ClanLevelUpEvent {
	return ClanLevelUpEvent{
		BaseEvent:   NewBaseEvent(EventClanLevelUp, clanID, at),
		ClanID:      clanID,
		OldLevel:    oldLevel,
		NewLevel:    newLevel,
		TriggeredBy: userID,
	}
}

// ClanMemberJoinedEvent is emitted when a user joins a clan.
type ClanMemberJoinedEvent struct {
	BaseEvent
	ClanID      string `json:"clan_id"`
	UserID      string `json:"user_id"`
	MemberCount int    `json:"member_count"`
}

// Payload implements Event interface.
func (e ClanMemberJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"clan_id":      e.ClanID,
		"user_id":      e.UserID,
		"member_count": e.MemberCount,
	}
}

// NewClanMemberJoinedEvent creates a new ClanMemberJoinedEvent.
func NewClanMemberJoinedEvent(clanID, userID string, members int, at time.Time) ClanMemberJoinedEvent {
	return ClanMemberJoinedEvent{
		BaseEvent:   NewBaseEvent(EventClanMemberJoined, clanID, at),
		ClanID:      clanID,
		UserID:      userID,
		MemberCount: members,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quest Events
// ═══════════════════════════════════════════════════════════════════════════

// QuestCompletedEvent is emitted once a quest reached its goal and paid out.
type QuestCompletedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	QuestID     string `json:"quest_id"`
	UserQuestID string `json:"user_quest_id"`
	XPReward    int64  `json:"xp_reward"`
}

// Payload implements Event interface.
func (e QuestCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"quest_id":      e.QuestID,
		"user_quest_id": e.UserQuestID,
		"xp_reward":     e.XPReward,
	}
}

// NewQuestCompletedEvent creates a new QuestCompletedEvent.
func NewQuestCompletedEvent(userID, questID, userQuestID string, reward int64, at time.Time) QuestCompletedEvent {
	return QuestCompletedEvent{
		BaseEvent:   NewBaseEvent(EventQuestCompleted, userID, at),
		UserID:      userID,
		QuestID:     questID,
		UserQuestID: userQuestID,
		XPReward:    reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Publishing contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
