package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUEST COMMANDS
// Assigns the daily and weekly quests of the current period, advances them
// from user activity and pays the reward through the award cascade once the
// goal is reached. Every quest mutation runs under the user's lock.
// ══════════════════════════════════════════════════════════════════════════════

// AssignQuestsCommand asks for the quests of the period containing On.
type AssignQuestsCommand struct {
	UserID string

	// On is "today". Zero means the handler's clock in its configured zone.
	On shared.Date
}

// Validate validates the command.
func (c AssignQuestsCommand) Validate() error {
	return required("assign_quests", "user_id", c.UserID)
}

// TrackQuestsCommand reports one piece of user activity.
type TrackQuestsCommand struct {
	UserID   string
	Activity quest.Activity

	// At is when the activity happened. Zero means the handler's clock.
	At time.Time
}

// Validate validates the command.
func (c TrackQuestsCommand) Validate() error {
	if err := required("track_quests", "user_id", c.UserID); err != nil {
		return err
	}
	a := c.Activity
	if a.Completions < 0 || a.MorningCompletions < 0 || a.ClanXP < 0 {
		return fmt.Errorf("track_quests: activity must not be negative: %w", shared.ErrNegativeValue)
	}
	return nil
}

// UpdateQuestProgressCommand sets the progress of one user quest.
type UpdateQuestProgressCommand struct {
	UserID      string
	UserQuestID string
	Progress    int
}

// Validate validates the command.
func (c UpdateQuestProgressCommand) Validate() error {
	if err := required("update_quest_progress", "user_id", c.UserID); err != nil {
		return err
	}
	if err := required("update_quest_progress", "user_quest_id", c.UserQuestID); err != nil {
		return err
	}
	if c.Progress < 0 {
		return fmt.Errorf("update_quest_progress: progress must not be negative: %w", shared.ErrNegativeValue)
	}
	return nil
}

// QuestPayout is a quest closed by a command together with its reward cascade.
type QuestPayout struct {
	Quest *quest.UserQuest
	Award *AwardXPResult
}

// QuestsResult reports what a quest command changed.
type QuestsResult struct {
	UserID string

	// Assigned are quests created for the current periods.
	Assigned []*quest.UserQuest

	// Expired counts active quests closed because their period ended.
	Expired int

	// Advanced are quests whose progress moved without reaching the goal.
	Advanced []*quest.UserQuest

	// Completed are quests that reached their goal and paid out.
	Completed []QuestPayout
}

// QuestConfig contains configuration for quests.
type QuestConfig struct {
	// Location defines the day and week boundaries and the morning cutoff.
	Location *time.Location
}

// DefaultQuestConfig returns default configuration.
func DefaultQuestConfig() QuestConfig {
	return QuestConfig{Location: time.UTC}
}

// QuestHandler handles quest assignment and progress.
type QuestHandler struct {
	quests    quest.Repository
	habits    habit.Repository
	locker    shared.Locker
	award     *AwardXPHandler
	publisher shared.EventPublisher
	clock     Clock
	logger    *slog.Logger
	config    QuestConfig
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(
	quests quest.Repository,
	habits habit.Repository,
	locker shared.Locker,
	award *AwardXPHandler,
	publisher shared.EventPublisher,
	clock Clock,
	logger *slog.Logger,
	config QuestConfig,
) *QuestHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &QuestHandler{
		quests:    quests,
		habits:    habits,
		locker:    locker,
		award:     award,
		publisher: publisherOrDefault(publisher),
		clock:     clockOrDefault(clock),
		logger:    loggerOrDefault(logger, "quests"),
		config:    config,
	}
}

// Location returns the zone quests are evaluated in.
func (h *QuestHandler) Location() *time.Location { return h.config.Location }

// Assign expires quests of past periods and creates the missing catalog
// quests of the current day and week. Repeating it is a no-op.
func (h *QuestHandler) Assign(ctx context.Context, cmd AssignQuestsCommand) (*QuestsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	today := cmd.On
	if today.IsZero() {
		today = shared.DateOf(h.clock(), h.config.Location)
	}

	result := &QuestsResult{UserID: cmd.UserID}
	err := withLock(ctx, h.locker, shared.UserLockKey(cmd.UserID), func() error {
		_, err := h.ensure(ctx, cmd.UserID, today, h.clock(), result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Track applies activity to the user's current quests and pays out every
// quest that reaches its goal. A completion without a day snapshot gets one
// built from the user's habits. On error the result still lists what was
// saved before the failure.
func (h *QuestHandler) Track(ctx context.Context, cmd TrackQuestsCommand) (*QuestsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := h.clock()
	at := cmd.At
	if at.IsZero() {
		at = now
	}
	today := shared.DateOf(at, h.config.Location)

	activity := cmd.Activity
	if activity.Completions > 0 && activity.Day == nil {
		habits, err := h.habits.ListByUser(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("track_quests: failed to list habits: %w", err)
		}
		day := quest.DayStateOf(habits, today)
		activity.Day = &day
	}

	result := &QuestsResult{UserID: cmd.UserID}
	err := withLock(ctx, h.locker, shared.UserLockKey(cmd.UserID), func() error {
		current, err := h.ensure(ctx, cmd.UserID, today, now, result)
		if err != nil {
			return err
		}
		for _, q := range current {
			def, ok := quest.Lookup(q.QuestID)
			if !ok || !q.Apply(def, activity, now) {
				continue
			}
			if err := h.save(ctx, q, now, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

// UpdateProgress sets the progress of one quest. Lower values than the
// stored progress change nothing; reaching the requirement pays out.
func (h *QuestHandler) UpdateProgress(ctx context.Context, cmd UpdateQuestProgressCommand) (*QuestsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &QuestsResult{UserID: cmd.UserID}
	err := withLock(ctx, h.locker, shared.UserLockKey(cmd.UserID), func() error {
		q, err := h.quests.GetByID(ctx, cmd.UserQuestID)
		if err != nil {
			return fmt.Errorf("update_quest_progress: %w", err)
		}
		if q.UserID != cmd.UserID {
			return fmt.Errorf("update_quest_progress: %w", shared.ErrQuestNotFound)
		}

		now := h.clock()
		if q.Expire(shared.DateOf(now, h.config.Location), now) {
			if err := h.quests.Update(ctx, q); err != nil {
				return fmt.Errorf("update_quest_progress: failed to expire quest: %w", err)
			}
			result.Expired++
			return fmt.Errorf("update_quest_progress: %w", shared.ErrQuestClosed)
		}

		changed, err := q.SetProgress(cmd.Progress, now)
		if err != nil {
			return fmt.Errorf("update_quest_progress: %w", err)
		}
		if !changed {
			return nil
		}
		return h.save(ctx, q, now, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ensure returns the active quests covering today, creating the missing ones
// and expiring the rest. The caller holds the user's lock.
func (h *QuestHandler) ensure(ctx context.Context, userID string, today shared.Date, now time.Time, result *QuestsResult) ([]*quest.UserQuest, error) {
	all, err := h.quests.ListByUser(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("quests: failed to list: %w", err)
	}

	held := make(map[string]bool)
	var current []*quest.UserQuest
	for _, q := range all {
		if q.Covers(today) {
			held[q.QuestID] = true
			if q.IsActive() {
				current = append(current, q)
			}
			continue
		}
		if q.Expire(today, now) {
			if err := h.quests.Update(ctx, q); err != nil {
				return nil, fmt.Errorf("quests: failed to expire %s: %w", q.ID, err)
			}
			result.Expired++
		}
	}

	for _, def := range quest.Catalog() {
		if held[def.ID] {
			continue
		}
		q, err := quest.Assign(uuid.NewString(), userID, def, today, now)
		if err != nil {
			return nil, err
		}
		if err := h.quests.Create(ctx, q); err != nil {
			if shared.IsAlreadyExists(err) {
				continue
			}
			return nil, fmt.Errorf("quests: failed to assign %s: %w", def.ID, err)
		}
		result.Assigned = append(result.Assigned, q)
		current = append(current, q)
	}
	return current, nil
}

// save stores advanced progress, or pays out a quest that reached its goal:
// the quest and the rewarded user are saved together, then the award
// cascade's post-save steps run. The caller holds the user's lock.
func (h *QuestHandler) save(ctx context.Context, q *quest.UserQuest, now time.Time, result *QuestsResult) error {
	if !q.GoalReached() {
		if err := h.quests.Update(ctx, q); err != nil {
			return fmt.Errorf("quests: failed to save progress: %w", err)
		}
		result.Advanced = append(result.Advanced, q)
		return nil
	}

	u, corrected, err := user.Load(ctx, h.award.users, q.UserID)
	if err != nil {
		return fmt.Errorf("quests: failed to get user: %w", err)
	}
	if corrected {
		h.logger.Warn("user level recomputed from xp", "user_id", u.ID, "error", shared.ErrLevelDesync)
	}

	grant := u.ApplyXP(q.XPReward, now)
	q.MarkCompleted(now)
	if err := h.quests.SaveCompletion(ctx, q, u); err != nil {
		return fmt.Errorf("quests: failed to save completion: %w", err)
	}

	award := h.award.afterGrant(ctx, u, AwardXPCommand{
		UserID: u.ID,
		Amount: q.XPReward,
		Reason: "quest_complete:" + q.QuestID,
	}, grant, true, now)
	result.Completed = append(result.Completed, QuestPayout{Quest: q, Award: award})

	h.logger.Info("quest completed", "user_id", u.ID, "quest_id", q.QuestID, "xp", q.XPReward)
	publishAll(h.logger, h.publisher, shared.NewQuestCompletedEvent(u.ID, q.QuestID, q.ID, q.XPReward, now))
	return nil
}
