// Package memory provides an in-process implementation of the repository
// interfaces. It is used by tests and by the worker when no database is configured.
//
// All repositories created from one Store share a single mutex, so the
// multi-record operations (RecordCompletion, SaveRedemption, AddMember,
// SaveContribution, SaveCompletion) are atomic with respect to each other. Every stored
// entity is cloned on the way in and out.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

type completionKey struct {
	habitID string
	on      shared.Date
}

type memberKey struct {
	clanID string
	userID string
}

type badgeKey struct {
	userID  string
	badgeID string
}

// Store holds all records in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	users       map[string]*user.Progress
	habits      map[string]*habit.Habit
	completions map[completionKey]habit.Completion
	clans       map[string]*clan.Clan
	members     map[memberKey]*clan.Membership
	badgeDefs   map[string]badge.Definition
	userBadges  map[badgeKey]badge.UserBadge
	quests      map[string]*quest.UserQuest
	questSlots  map[questKey]string

	// failNext, when set, is returned by the next mutating call. Tests use it
	// to simulate persistence failures.
	failNext error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]*user.Progress),
		habits:      make(map[string]*habit.Habit),
		completions: make(map[completionKey]habit.Completion),
		clans:       make(map[string]*clan.Clan),
		members:     make(map[memberKey]*clan.Membership),
		badgeDefs:   make(map[string]badge.Definition),
		userBadges:  make(map[badgeKey]badge.UserBadge),
		quests:      make(map[string]*quest.UserQuest),
		questSlots:  make(map[questKey]string),
	}
}

// FailNext makes the next mutating call return err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// takeFailure must be called with s.mu held for writing.
func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Users returns the user repository view.
func (s *Store) Users() user.Repository { return &userRepo{s} }

// Habits returns the habit repository view.
func (s *Store) Habits() habit.Repository { return &habitRepo{s} }

// Clans returns the clan repository view.
func (s *Store) Clans() clan.Repository { return &clanRepo{s} }

// Badges returns the badge repository view.
func (s *Store) Badges() badge.Repository { return &badgeRepo{s} }

// Quests returns the quest repository view.
func (s *Store) Quests() quest.Repository { return &questRepo{s} }

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

func page[T any](items []T, opts user.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// ═══════════════════════════════════════════════════════════════════════════
// Users
// ═══════════════════════════════════════════════════════════════════════════

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, p *user.Progress) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.s.users[p.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	p.Version = 1
	r.s.users[p.ID] = p.Clone()
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*user.Progress, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return p.Clone(), nil
}

func (r *userRepo) Update(ctx context.Context, p *user.Progress) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if err := r.s.checkUser(p); err != nil {
		return err
	}
	r.s.putUser(p)
	return nil
}

func (r *userRepo) List(ctx context.Context, opts user.ListOptions) ([]*user.Progress, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*user.Progress, 0, len(r.s.users))
	for _, p := range r.s.users {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts), nil
}

func (s *Store) checkUser(p *user.Progress) error {
	cur, ok := s.users[p.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if cur.Version != p.Version {
		return shared.ErrUserStale
	}
	return nil
}

func (s *Store) putUser(p *user.Progress) {
	p.Version++
	s.users[p.ID] = p.Clone()
}

// ═══════════════════════════════════════════════════════════════════════════
// Habits
// ═══════════════════════════════════════════════════════════════════════════

type habitRepo struct{ s *Store }

func (r *habitRepo) Create(ctx context.Context, h *habit.Habit) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.s.habits[h.ID]; ok {
		return shared.ErrHabitAlreadyExists
	}
	h.Version = 1
	r.s.habits[h.ID] = h.Clone()
	return nil
}

func (r *habitRepo) GetByID(ctx context.Context, id string) (*habit.Habit, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	h, ok := r.s.habits[id]
	if !ok {
		return nil, shared.ErrHabitNotFound
	}
	return h.Clone(), nil
}

func (r *habitRepo) ListByUser(ctx context.Context, userID string) ([]*habit.Habit, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*habit.Habit, 0)
	for _, h := range r.s.habits {
		if h.UserID == userID {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *habitRepo) Update(ctx context.Context, h *habit.Habit) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if err := r.s.checkHabit(h); err != nil {
		return err
	}
	r.s.putHabit(h)
	return nil
}

func (r *habitRepo) HasCompletion(ctx context.Context, habitID string, on shared.Date) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.completions[completionKey{habitID, on}]
	return ok, nil
}

func (r *habitRepo) RecordCompletion(ctx context.Context, h *habit.Habit, c habit.Completion, u *user.Progress) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	key := completionKey{c.HabitID, c.On}
	if _, ok := r.s.completions[key]; ok {
		return shared.ErrHabitCompletedToday
	}
	if err := r.s.checkHabit(h); err != nil {
		return err
	}
	if u != nil {
		if err := r.s.checkUser(u); err != nil {
			return err
		}
		r.s.putUser(u)
	}
	r.s.completions[key] = c
	r.s.putHabit(h)
	return nil
}

func (r *habitRepo) ListCompletions(ctx context.Context, habitID string, limit int) ([]habit.Completion, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]habit.Completion, 0)
	for k, c := range r.s.completions {
		if k.habitID == habitID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].On.After(out[j].On) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *habitRepo) SaveRedemption(ctx context.Context, h *habit.Habit, u *user.Progress) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if err := r.s.checkHabit(h); err != nil {
		return err
	}
	if err := r.s.checkUser(u); err != nil {
		return err
	}
	r.s.putHabit(h)
	r.s.putUser(u)
	return nil
}

func (s *Store) checkHabit(h *habit.Habit) error {
	cur, ok := s.habits[h.ID]
	if !ok {
		return shared.ErrHabitNotFound
	}
	if cur.Version != h.Version {
		return shared.ErrHabitStale
	}
	return nil
}

func (s *Store) putHabit(h *habit.Habit) {
	h.Version++
	s.habits[h.ID] = h.Clone()
}

// ═══════════════════════════════════════════════════════════════════════════
// Clans
// ═══════════════════════════════════════════════════════════════════════════

type clanRepo struct{ s *Store }

func (r *clanRepo) Create(ctx context.Context, c *clan.Clan) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.s.clans[c.ID]; ok {
		return shared.ErrClanAlreadyExists
	}
	c.Version = 1
	r.s.clans[c.ID] = c.Clone()
	return nil
}

func (r *clanRepo) GetByID(ctx context.Context, id string) (*clan.Clan, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.clans[id]
	if !ok {
		return nil, shared.ErrClanNotFound
	}
	return c.Clone(), nil
}

func (r *clanRepo) List(ctx context.Context, opts user.ListOptions) ([]*clan.Clan, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*clan.Clan, 0, len(r.s.clans))
	for _, c := range r.s.clans {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts), nil
}

func (r *clanRepo) GetMembership(ctx context.Context, clanID, userID string) (*clan.Membership, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.members[memberKey{clanID, userID}]
	if !ok {
		return nil, shared.ErrMembershipNotFound
	}
	return m.Clone(), nil
}

func (r *clanRepo) ListMembers(ctx context.Context, clanID string) ([]*clan.Membership, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*clan.Membership, 0)
	for k, m := range r.s.members {
		if k.clanID == clanID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *clanRepo) AddMember(ctx context.Context, c *clan.Clan, m *clan.Membership, u *user.Progress) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	key := memberKey{m.ClanID, m.UserID}
	if _, ok := r.s.members[key]; ok {
		return shared.ErrAlreadyInClan
	}
	if err := r.s.checkClan(c); err != nil {
		return err
	}
	if err := r.s.checkUser(u); err != nil {
		return err
	}

	m.Version = 1
	r.s.members[key] = m.Clone()
	r.s.putClan(c)
	r.s.putUser(u)
	return nil
}

func (r *clanRepo) SaveContribution(ctx context.Context, c *clan.Clan, m *clan.Membership) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if err := r.s.checkClan(c); err != nil {
		return err
	}
	key := memberKey{m.ClanID, m.UserID}
	cur, ok := r.s.members[key]
	if !ok {
		return shared.ErrMembershipNotFound
	}
	if cur.Version != m.Version {
		return shared.ErrClanStale
	}

	m.Version++
	r.s.members[key] = m.Clone()
	r.s.putClan(c)
	return nil
}

func (s *Store) checkClan(c *clan.Clan) error {
	cur, ok := s.clans[c.ID]
	if !ok {
		return shared.ErrClanNotFound
	}
	if cur.Version != c.Version {
		return shared.ErrClanStale
	}
	return nil
}

func (s *Store) putClan(c *clan.Clan) {
	c.Version++
	s.clans[c.ID] = c.Clone()
}

// ═══════════════════════════════════════════════════════════════════════════
// Badges
// ═══════════════════════════════════════════════════════════════════════════

type badgeRepo struct{ s *Store }

func (r *badgeRepo) EnsureCatalog(ctx context.Context, defs []badge.Definition) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	for _, d := range defs {
		r.s.badgeDefs[d.ID] = d
	}
	return nil
}

func (r *badgeRepo) ListDefinitions(ctx context.Context) ([]badge.Definition, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]badge.Definition, 0, len(r.s.badgeDefs))
	for _, d := range r.s.badgeDefs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *badgeRepo) ListEarned(ctx context.Context, userID string) ([]badge.UserBadge, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]badge.UserBadge, 0)
	for k, ub := range r.s.userBadges {
		if k.userID == userID {
			out = append(out, ub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	return out, nil
}

func (r *badgeRepo) Award(ctx context.Context, ub badge.UserBadge) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	key := badgeKey{ub.UserID, ub.BadgeID}
	if _, ok := r.s.userBadges[key]; ok {
		return shared.ErrBadgeEarned
	}
	r.s.userBadges[key] = ub
	return nil
}

// BadgeCount returns the number of stored user badges for userID.
func (s *Store) BadgeCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.userBadges {
		if k.userID == userID {
			n++
		}
	}
	return n
}
