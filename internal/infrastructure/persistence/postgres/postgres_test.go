package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

func TestPoolLimits_WithDefaults(t *testing.T) {
	got := PoolLimits{MaxConns: 25}.withDefaults()
	def := DefaultPoolLimits()

	assert.Equal(t, int32(25), got.MaxConns)
	assert.Equal(t, def.MinConns, got.MinConns)
	assert.Equal(t, def.MaxConnLifetime, got.MaxConnLifetime)
	assert.Equal(t, def.MaxConnIdleTime, got.MaxConnIdleTime)
}

func TestMigrator_RollbackThenMigrate(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := NewConnectionFromURL(ctx, url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	m := NewMigrator(conn)
	require.NoError(t, m.Migrate(ctx))
	require.NoError(t, m.Rollback(ctx))

	applied, err := m.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.NotContains(t, applied, len(GetMigrations()))

	require.NoError(t, m.Migrate(ctx))
	applied, err = m.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, len(GetMigrations()))
}

func TestMigrationsAreOrdered(t *testing.T) {
	migs := GetMigrations()
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}
}

// newTestStore migrates DATABASE_URL and returns a store over it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := NewConnectionFromURL(ctx, url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return NewStore(conn)
}

func newUser(t *testing.T, s *Store) *user.Progress {
	t.Helper()
	p, err := user.NewProgress(user.NewProgressParams{ID: "u-" + uuid.NewString()[:8], Now: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, s.Users().Create(context.Background(), p))
	return p
}

func TestUserRepository_VersionCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newUser(t, s)
	assert.ErrorIs(t, s.Users().Create(ctx, p.Clone()), shared.ErrUserAlreadyExists)

	a, err := s.Users().GetByID(ctx, p.ID)
	require.NoError(t, err)
	b, err := s.Users().GetByID(ctx, p.ID)
	require.NoError(t, err)

	a.XP, a.TotalPoints = 50, 50
	require.NoError(t, s.Users().Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.XP = 10
	assert.ErrorIs(t, s.Users().Update(ctx, b), shared.ErrUserStale)

	got, err := s.Users().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.XP)

	_, err = s.Users().GetByID(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestHabitRepository_OneCompletionPerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newUser(t, s)

	h, err := habit.NewHabit(habit.NewHabitParams{ID: "h-" + uuid.NewString()[:8], UserID: p.ID, Title: "Read", Difficulty: habit.DifficultyEasy, Now: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, s.Habits().Create(ctx, h))

	today := shared.DateOf(time.Now(), time.UTC)
	h.Streak, h.BestStreak, h.TotalCompletions, h.LastCompleted = 1, 1, 1, today
	c := habit.Completion{HabitID: h.ID, UserID: p.ID, On: today, XPEarned: 10}
	require.NoError(t, s.Habits().RecordCompletion(ctx, h, c, nil))

	dup := h.Clone()
	dup.TotalCompletions = 2
	assert.ErrorIs(t, s.Habits().RecordCompletion(ctx, dup, c, nil), shared.ErrHabitCompletedToday)
	assert.Equal(t, h.Version, dup.Version)

	ok, err := s.Habits().HasCompletion(ctx, h.ID, today)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Habits().GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalCompletions)
	assert.True(t, got.LastCompleted.Equal(today))

	log, err := s.Habits().ListCompletions(ctx, h.ID, 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.True(t, log[0].On.Equal(today))
}

func TestHabitRepository_CompletionRollsBackOnStaleUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newUser(t, s)

	h, err := habit.NewHabit(habit.NewHabitParams{ID: "h-" + uuid.NewString()[:8], UserID: p.ID, Title: "Run", Difficulty: habit.DifficultyHard, Now: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, s.Habits().Create(ctx, h))

	stale := p.Clone()
	p.XP = 5
	require.NoError(t, s.Users().Update(ctx, p))

	today := shared.DateOf(time.Now(), time.UTC)
	h.Streak, h.TotalCompletions, h.LastCompleted = 1, 1, today
	stale.XP = 20
	hv, uv := h.Version, stale.Version
	err = s.Habits().RecordCompletion(ctx, h, habit.Completion{HabitID: h.ID, UserID: p.ID, On: today, XPEarned: 20}, stale)
	assert.ErrorIs(t, err, shared.ErrUserStale)
	assert.Equal(t, hv, h.Version)
	assert.Equal(t, uv, stale.Version)

	ok, err := s.Habits().HasCompletion(ctx, h.ID, today)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := s.Habits().GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalCompletions)
}

func TestQuestRepository_SlotAndCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newUser(t, s)
	now := time.Now().UTC()
	today := shared.DateOf(now, time.UTC)

	def, _ := quest.Lookup("weekly-warrior")
	q, err := quest.Assign(uuid.NewString(), p.ID, def, today, now)
	require.NoError(t, err)
	require.NoError(t, s.Quests().Create(ctx, q))

	again, err := quest.Assign(uuid.NewString(), p.ID, def, today, now)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Quests().Create(ctx, again), shared.ErrQuestAssigned)

	// A stale user rolls the quest back with it.
	stale := p.Clone()
	p.XP = 5
	require.NoError(t, s.Users().Update(ctx, p))
	_, err = q.SetProgress(def.Requirement, now)
	require.NoError(t, err)
	q.MarkCompleted(now)
	qv := q.Version
	assert.ErrorIs(t, s.Quests().SaveCompletion(ctx, q, stale), shared.ErrUserStale)
	assert.Equal(t, qv, q.Version)

	got, err := s.Quests().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusActive, got.Status)
	assert.Zero(t, got.Progress)

	p.XP += def.XPReward
	require.NoError(t, s.Quests().SaveCompletion(ctx, q, p))

	done, err := s.Quests().ListByUser(ctx, p.ID, quest.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, def.Requirement, done[0].Progress)
	assert.False(t, done[0].CompletedAt.IsZero())
}

func TestClanRepository_LedgerAndBadges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newUser(t, s)

	c, err := clan.NewClan(clan.NewClanParams{ID: "c-" + uuid.NewString()[:8], Name: "Larks " + uuid.NewString()[:4], OwnerID: p.ID, Now: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, s.Clans().Create(ctx, c))

	m := &clan.Membership{ClanID: c.ID, UserID: p.ID, Role: clan.RoleLeader, JoinedAt: time.Now().UTC()}
	c.MemberCount = 1
	p.ClanID = c.ID
	require.NoError(t, s.Clans().AddMember(ctx, c, m, p))

	c.TotalXP, c.Level = 500, 2
	m.XPContributed = 500
	require.NoError(t, s.Clans().SaveContribution(ctx, c, m))

	members, err := s.Clans().ListMembers(ctx, c.ID)
	require.NoError(t, err)
	stored, err := s.Clans().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.NoError(t, stored.VerifyLedger(members))

	require.NoError(t, s.Badges().EnsureCatalog(ctx, badge.Catalog()))
	ub := badge.UserBadge{UserID: p.ID, BadgeID: "first-steps"}
	require.NoError(t, s.Badges().Award(ctx, ub))
	assert.ErrorIs(t, s.Badges().Award(ctx, ub), shared.ErrBadgeEarned)
}
