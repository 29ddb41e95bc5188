package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
	"github.com/habituate/progression-engine/internal/infrastructure/locking"
	"github.com/habituate/progression-engine/internal/infrastructure/persistence/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) count(t shared.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	store *memory.Store
	pub   *recorder
	now   time.Time

	badges    *BadgeHandler
	clan      *ContributeClanXPHandler
	award     *AwardXPHandler
	lives     *ExtraLifeHandler
	complete  *CompleteHabitHandler
	join      *JoinClanHandler
	provision *ProvisionHandler
	quests    *QuestHandler
}

func newFixture(t *testing.T, cfg AwardXPConfig) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewStore(),
		pub:   &recorder{},
		now:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	locker := locking.NewKeyedMutex()
	users, habits, clans, badges := f.store.Users(), f.store.Habits(), f.store.Clans(), f.store.Badges()

	f.badges = NewBadgeHandler(users, habits, clans, badges, f.pub, clock, nil)
	f.clan = NewContributeClanXPHandler(clans, locker, f.badges, f.pub, clock, nil)
	f.award = NewAwardXPHandler(users, locker, f.badges, f.clan, f.pub, clock, nil, cfg)
	f.lives = NewExtraLifeHandler(users, habits, locker, f.pub, clock, nil, DefaultExtraLifeConfig())
	f.complete = NewCompleteHabitHandler(habits, locker, f.award, f.lives, f.badges, f.pub, clock, nil, DefaultCompleteHabitConfig())
	f.join = NewJoinClanHandler(users, clans, locker, f.badges, f.pub, clock, nil)
	f.provision = NewProvisionHandler(users, habits, clans, f.join, clock, nil, clan.DefaultMaxMembers)
	f.quests = NewQuestHandler(f.store.Quests(), habits, locker, f.award, f.pub, clock, nil, DefaultQuestConfig())
	return f
}

func (f *fixture) today() shared.Date {
	return shared.DateOf(f.now, time.UTC)
}

func (f *fixture) advanceDays(n int) {
	f.now = f.now.AddDate(0, 0, n)
}

func (f *fixture) registerUser(t *testing.T, id string, xp int64, lives int) {
	t.Helper()
	_, err := f.provision.RegisterUser(context.Background(), RegisterUserCommand{UserID: id, InitialXP: xp, ExtraLives: lives})
	require.NoError(t, err)
}

func (f *fixture) createHabit(t *testing.T, id, userID string, d habit.Difficulty) {
	t.Helper()
	_, err := f.provision.CreateHabit(context.Background(), CreateHabitCommand{HabitID: id, UserID: userID, Title: "habit " + id, Difficulty: string(d)})
	require.NoError(t, err)
}

func (f *fixture) getUser(t *testing.T, id string) *user.Progress {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) getHabit(t *testing.T, id string) *habit.Habit {
	t.Helper()
	h, err := f.store.Habits().GetByID(context.Background(), id)
	require.NoError(t, err)
	return h
}

func (f *fixture) setHabit(t *testing.T, id string, mutate func(h *habit.Habit)) {
	t.Helper()
	h := f.getHabit(t, id)
	mutate(h)
	require.NoError(t, f.store.Habits().Update(context.Background(), h))
}

func (f *fixture) setUser(t *testing.T, id string, mutate func(u *user.Progress)) {
	t.Helper()
	u := f.getUser(t, id)
	mutate(u)
	require.NoError(t, f.store.Users().Update(context.Background(), u))
}
