package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

func assignedQuest(t *testing.T, res *QuestsResult, questID string) *quest.UserQuest {
	t.Helper()
	for _, q := range res.Assigned {
		if q.QuestID == questID {
			return q
		}
	}
	t.Fatalf("quest %s not assigned", questID)
	return nil
}

func TestQuests_AssignIsIdempotentPerPeriod(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)

	res, err := f.quests.Assign(ctx, AssignQuestsCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, res.Assigned, len(quest.Catalog()))

	res, err = f.quests.Assign(ctx, AssignQuestsCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, res.Assigned)
	assert.Zero(t, res.Expired)

	// Tuesday -> Wednesday: new daily quests, same weekly ones.
	f.advanceDays(1)
	res, err = f.quests.Assign(ctx, AssignQuestsCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, res.Assigned, len(quest.DailyQuests()))
	assert.Equal(t, len(quest.DailyQuests()), res.Expired)

	expired, err := f.store.Quests().ListByUser(ctx, "u1", quest.StatusExpired)
	require.NoError(t, err)
	assert.Len(t, expired, len(quest.DailyQuests()))
}

func TestQuests_WeeklyCompletionsPayThroughCascade(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)

	res, err := f.quests.Track(ctx, TrackQuestsCommand{UserID: "u1", Activity: quest.Activity{Completions: 19}})
	require.NoError(t, err)
	require.Len(t, res.Advanced, 1)
	assert.Equal(t, "weekly-warrior", res.Advanced[0].QuestID)
	assert.Empty(t, res.Completed)
	assert.Equal(t, int64(0), f.getUser(t, "u1").XP)

	res, err = f.quests.Track(ctx, TrackQuestsCommand{UserID: "u1", Activity: quest.Activity{Completions: 1}})
	require.NoError(t, err)
	require.Len(t, res.Completed, 1)
	payout := res.Completed[0]
	assert.Equal(t, quest.StatusCompleted, payout.Quest.Status)
	require.NotNil(t, payout.Award)
	assert.Equal(t, "quest_complete:weekly-warrior", payout.Award.Reason)
	assert.Equal(t, int64(200), payout.Award.NewXP)

	assert.Equal(t, int64(200), f.getUser(t, "u1").XP)
	assert.Equal(t, 1, f.pub.count(shared.EventQuestCompleted))

	// A completed quest never pays twice.
	res, err = f.quests.Track(ctx, TrackQuestsCommand{UserID: "u1", Activity: quest.Activity{Completions: 5}})
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	assert.Equal(t, int64(200), f.getUser(t, "u1").XP)
}

func TestQuests_DayQuestsUseHabitSnapshot(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)
	f.createHabit(t, "h1", "u1", habit.DifficultyEasy)

	done, err := f.complete.Handle(ctx, CompleteHabitCommand{UserID: "u1", HabitID: "h1"})
	require.NoError(t, err)

	res, err := f.quests.Track(ctx, TrackQuestsCommand{UserID: "u1", Activity: quest.Activity{Completions: 1}})
	require.NoError(t, err)

	var paid []string
	for _, p := range res.Completed {
		paid = append(paid, p.Quest.QuestID)
	}
	assert.ElementsMatch(t, []string{"perfect-day", "streak-keeper"}, paid)
	assert.Equal(t, done.XPEarned+75+30, f.getUser(t, "u1").XP)
}

func TestQuests_UpdateProgress(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)
	f.registerUser(t, "u2", 0, 0)

	assigned, err := f.quests.Assign(ctx, AssignQuestsCommand{UserID: "u1"})
	require.NoError(t, err)
	hero := assignedQuest(t, assigned, "clan-hero")

	res, err := f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u1", UserQuestID: hero.ID, Progress: 300})
	require.NoError(t, err)
	require.Len(t, res.Advanced, 1)
	assert.Equal(t, 300, res.Advanced[0].Progress)

	res, err = f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u1", UserQuestID: hero.ID, Progress: 100})
	require.NoError(t, err)
	assert.Empty(t, res.Advanced)

	_, err = f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u2", UserQuestID: hero.ID, Progress: 500})
	assert.True(t, shared.IsNotFound(err))

	res, err = f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u1", UserQuestID: hero.ID, Progress: 900})
	require.NoError(t, err)
	require.Len(t, res.Completed, 1)
	assert.Equal(t, 500, res.Completed[0].Quest.Progress)
	assert.Equal(t, int64(150), f.getUser(t, "u1").XP)

	_, err = f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u1", UserQuestID: hero.ID, Progress: 500})
	assert.ErrorIs(t, err, shared.ErrQuestClosed)

	_, err = f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u1", UserQuestID: hero.ID, Progress: -1})
	assert.True(t, shared.IsValidation(err))
}

func TestQuests_UpdateProgressAfterPeriodExpires(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)

	assigned, err := f.quests.Assign(ctx, AssignQuestsCommand{UserID: "u1"})
	require.NoError(t, err)
	morning := assignedQuest(t, assigned, "morning-momentum")

	f.advanceDays(1)
	_, err = f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u1", UserQuestID: morning.ID, Progress: 3})
	assert.ErrorIs(t, err, shared.ErrQuestClosed)

	stored, err := f.store.Quests().GetByID(ctx, morning.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusExpired, stored.Status)
	assert.Equal(t, int64(0), f.getUser(t, "u1").XP)
}

func TestQuests_FailedPayoutKeepsQuestOpen(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)
	_, err := f.quests.Assign(ctx, AssignQuestsCommand{UserID: "u1"})
	require.NoError(t, err)

	f.store.FailNext(errors.New("connection reset"))
	_, err = f.quests.Track(ctx, TrackQuestsCommand{UserID: "u1", Activity: quest.Activity{ClanXP: 500}})
	require.Error(t, err)

	active, err := f.store.Quests().ListByUser(ctx, "u1", quest.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, len(quest.Catalog()))
	assert.Equal(t, int64(0), f.getUser(t, "u1").XP)
	assert.Zero(t, f.pub.count(shared.EventQuestCompleted))

	res, err := f.quests.Track(ctx, TrackQuestsCommand{UserID: "u1", Activity: quest.Activity{ClanXP: 500}})
	require.NoError(t, err)
	require.Len(t, res.Completed, 1)
	assert.Equal(t, int64(150), f.getUser(t, "u1").XP)
}

func TestQuests_Validation(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()

	_, err := f.quests.Assign(ctx, AssignQuestsCommand{})
	assert.True(t, shared.IsValidation(err))

	_, err = f.quests.Track(ctx, TrackQuestsCommand{UserID: "u1", Activity: quest.Activity{Completions: -1}})
	assert.True(t, shared.IsValidation(err))

	_, err = f.quests.UpdateProgress(ctx, UpdateQuestProgressCommand{UserID: "u1"})
	assert.True(t, shared.IsValidation(err))
}
