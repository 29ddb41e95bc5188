package memory

import (
	"context"
	"sort"

	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// questKey is the (user, quest, period) slot a user quest occupies.
type questKey struct {
	userID  string
	questID string
	period  shared.Date
}

type questRepo struct{ s *Store }

func (r *questRepo) Create(ctx context.Context, q *quest.UserQuest) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	key := questKey{q.UserID, q.QuestID, q.PeriodStart}
	if _, ok := r.s.questSlots[key]; ok {
		return shared.ErrQuestAssigned
	}
	if _, ok := r.s.quests[q.ID]; ok {
		return shared.ErrQuestAssigned
	}
	q.Version = 1
	r.s.quests[q.ID] = q.Clone()
	r.s.questSlots[key] = q.ID
	return nil
}

func (r *questRepo) GetByID(ctx context.Context, id string) (*quest.UserQuest, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	q, ok := r.s.quests[id]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	return q.Clone(), nil
}

func (r *questRepo) ListByUser(ctx context.Context, userID string, status quest.Status) ([]*quest.UserQuest, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*quest.UserQuest, 0)
	for _, q := range r.s.quests {
		if q.UserID != userID || (status != "" && q.Status != status) {
			continue
		}
		out = append(out, q.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].QuestID < out[j].QuestID
	})
	return out, nil
}

func (r *questRepo) Update(ctx context.Context, q *quest.UserQuest) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if err := r.s.checkQuest(q); err != nil {
		return err
	}
	r.s.putQuest(q)
	return nil
}

func (r *questRepo) SaveCompletion(ctx context.Context, q *quest.UserQuest, u *user.Progress) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	if err := r.s.checkQuest(q); err != nil {
		return err
	}
	if err := r.s.checkUser(u); err != nil {
		return err
	}
	r.s.putQuest(q)
	r.s.putUser(u)
	return nil
}

func (s *Store) checkQuest(q *quest.UserQuest) error {
	cur, ok := s.quests[q.ID]
	if !ok {
		return shared.ErrQuestNotFound
	}
	if cur.Version != q.Version {
		return shared.ErrQuestStale
	}
	return nil
}

func (s *Store) putQuest(q *quest.UserQuest) {
	q.Version++
	s.quests[q.ID] = q.Clone()
}
