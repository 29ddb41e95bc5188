// Package application wires the command and query handlers into a single
// progression engine that an outer surface (HTTP, RPC, worker) calls into.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/habituate/progression-engine/internal/application/command"
	"github.com/habituate/progression-engine/internal/application/query"
	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
	"github.com/habituate/progression-engine/internal/infrastructure/persistence/memory"
)

// Repositories groups the persistence collaborators.
type Repositories struct {
	Users  user.Repository
	Habits habit.Repository
	Clans  clan.Repository
	Badges badge.Repository
	Quests quest.Repository
}

func (r Repositories) validate() error {
	if r.Users == nil || r.Habits == nil || r.Clans == nil || r.Badges == nil || r.Quests == nil {
		return errors.New("engine: all repositories are required")
	}
	return nil
}

// Deps are the collaborators the engine needs. Only Repos and Locker are
// required; Publisher defaults to a no-op, Ranking to an in-memory board.
type Deps struct {
	Repos     Repositories
	Locker    shared.Locker
	Publisher shared.EventPublisher
	Ranking   leaderboard.Ranking
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Config tunes the progression rules.
type Config struct {
	AwardXP        command.AwardXPConfig
	CompleteHabit  command.CompleteHabitConfig
	ExtraLife      command.ExtraLifeConfig
	Quests         command.QuestConfig
	ClanMaxMembers int
}

// DefaultConfig returns the default rules.
func DefaultConfig() Config {
	return Config{
		AwardXP:        command.DefaultAwardXPConfig(),
		CompleteHabit:  command.DefaultCompleteHabitConfig(),
		ExtraLife:      command.DefaultExtraLifeConfig(),
		Quests:         command.DefaultQuestConfig(),
		ClanMaxMembers: clan.DefaultMaxMembers,
	}
}

// Engine is the integration surface of the progression engine.
type Engine struct {
	repos  Repositories
	loc    *time.Location
	clock  command.Clock
	logger *slog.Logger

	badges    *command.BadgeHandler
	clan      *command.ContributeClanXPHandler
	award     *command.AwardXPHandler
	lives     *command.ExtraLifeHandler
	complete  *command.CompleteHabitHandler
	join      *command.JoinClanHandler
	provision *command.ProvisionHandler
	quests    *command.QuestHandler

	userStats     *query.GetUserStatsHandler
	streakStats   *query.GetStreakStatsHandler
	clanProgress  *query.GetClanProgressHandler
	badgeProgress *query.GetBadgeProgressHandler
	leaderboard   *query.GetLeaderboardHandler
	activeQuests  *query.GetActiveQuestsHandler
}

// NewEngine wires every handler.
func NewEngine(deps Deps, cfg Config) (*Engine, error) {
	if err := deps.Repos.validate(); err != nil {
		return nil, err
	}
	if deps.Locker == nil {
		return nil, errors.New("engine: locker is required")
	}
	if deps.Ranking == nil {
		deps.Ranking = memory.NewLeaderboard()
	}
	clock := deps.Clock
	if clock == nil {
		clock = command.SystemClock
	}
	r := deps.Repos

	loc := cfg.ExtraLife.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{repos: r, loc: loc, clock: clock, logger: logger}
	e.badges = command.NewBadgeHandler(r.Users, r.Habits, r.Clans, r.Badges, deps.Publisher, clock, deps.Logger)
	e.clan = command.NewContributeClanXPHandler(r.Clans, deps.Locker, e.badges, deps.Publisher, clock, deps.Logger)
	e.award = command.NewAwardXPHandler(r.Users, deps.Locker, e.badges, e.clan, deps.Publisher, clock, deps.Logger, cfg.AwardXP)
	e.lives = command.NewExtraLifeHandler(r.Users, r.Habits, deps.Locker, deps.Publisher, clock, deps.Logger, cfg.ExtraLife)
	e.complete = command.NewCompleteHabitHandler(r.Habits, deps.Locker, e.award, e.lives, e.badges, deps.Publisher, clock, deps.Logger, cfg.CompleteHabit)
	e.join = command.NewJoinClanHandler(r.Users, r.Clans, deps.Locker, e.badges, deps.Publisher, clock, deps.Logger)
	e.provision = command.NewProvisionHandler(r.Users, r.Habits, r.Clans, e.join, clock, deps.Logger, cfg.ClanMaxMembers)
	e.quests = command.NewQuestHandler(r.Quests, r.Habits, deps.Locker, e.award, deps.Publisher, clock, deps.Logger, cfg.Quests)

	e.userStats = query.NewGetUserStatsHandler(r.Users, r.Habits, r.Clans, r.Badges, clock)
	e.streakStats = query.NewGetStreakStatsHandler(r.Users, r.Habits, clock)
	e.clanProgress = query.NewGetClanProgressHandler(r.Clans)
	e.badgeProgress = query.NewGetBadgeProgressHandler(r.Users, r.Habits, r.Clans, r.Badges)
	e.leaderboard = query.NewGetLeaderboardHandler(deps.Ranking, clock)
	e.activeQuests = query.NewGetActiveQuestsHandler(r.Quests, clock)
	return e, nil
}

// EnsureCatalog stores the badge catalog.
func (e *Engine) EnsureCatalog(ctx context.Context) error {
	if err := e.repos.Badges.EnsureCatalog(ctx, badge.Catalog()); err != nil {
		return fmt.Errorf("ensure badge catalog: %w", err)
	}
	return nil
}

// Repositories returns the persistence collaborators the engine was built with.
func (e *Engine) Repositories() Repositories { return e.repos }

// ═══════════════════════════════════════════════════════════════════════════
// Commands
// ═══════════════════════════════════════════════════════════════════════════

// AwardXP grants (or, with a negative amount, corrects) XP for a user.
// XP forwarded to the user's clan counts towards clan quests.
func (e *Engine) AwardXP(ctx context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
	res, err := e.award.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if xp := clanXP(res); xp > 0 {
		e.trackQuests(ctx, cmd.UserID, quest.Activity{ClanXP: xp})
	}
	return res, nil
}

// CompleteHabit records today's completion of a habit and runs the cascade,
// then advances the user's quests.
func (e *Engine) CompleteHabit(ctx context.Context, cmd command.CompleteHabitCommand) (*command.CompleteHabitResult, error) {
	res, err := e.complete.Handle(ctx, cmd)
	if err != nil {
		return res, err
	}
	activity := quest.Activity{Completions: 1, ClanXP: clanXP(res.Award) + clanXP(res.MilestoneAward)}
	if quest.IsMorning(e.clock(), e.quests.Location()) {
		activity.MorningCompletions = 1
	}
	e.trackQuests(ctx, cmd.UserID, activity)
	return res, nil
}

// trackQuests advances quests after a committed mutation. A failure here
// leaves the mutation in place and is only logged; UpdateQuestProgress can
// repair the count.
func (e *Engine) trackQuests(ctx context.Context, userID string, a quest.Activity) {
	if _, err := e.quests.Track(ctx, command.TrackQuestsCommand{UserID: userID, Activity: a}); err != nil {
		e.logger.Warn("quest tracking failed", "user_id", userID, "error", err)
	}
}

func clanXP(r *command.AwardXPResult) int64 {
	if r == nil || r.Clan == nil {
		return 0
	}
	return r.Amount
}

// AssignQuests creates the user's quests for the current day and week and
// expires those of past periods.
func (e *Engine) AssignQuests(ctx context.Context, cmd command.AssignQuestsCommand) (*command.QuestsResult, error) {
	return e.quests.Assign(ctx, cmd)
}

// UpdateQuestProgress sets the progress of one quest, paying its reward
// when the goal is reached.
func (e *Engine) UpdateQuestProgress(ctx context.Context, cmd command.UpdateQuestProgressCommand) (*command.QuestsResult, error) {
	return e.quests.UpdateProgress(ctx, cmd)
}

// CheckMissed reports habits with missed days without changing them.
func (e *Engine) CheckMissed(ctx context.Context, cmd command.CheckMissedCommand) ([]habit.MissedDayReport, error) {
	return e.lives.CheckMissed(ctx, cmd)
}

// ScanMissed persists missed days for every broken habit of a user.
func (e *Engine) ScanMissed(ctx context.Context, userID string, on shared.Date) (*command.ScanMissedResult, error) {
	return e.lives.ScanMissed(ctx, userID, on)
}

// RedeemExtraLife spends one extra life to repair a broken streak.
func (e *Engine) RedeemExtraLife(ctx context.Context, cmd command.RedeemExtraLifeCommand) (*command.RedeemExtraLifeResult, error) {
	return e.lives.Redeem(ctx, cmd)
}

// EvaluateBadges awards every badge the user currently qualifies for.
func (e *Engine) EvaluateBadges(ctx context.Context, cmd command.EvaluateBadgesCommand) (*command.EvaluateBadgesResult, error) {
	return e.badges.Handle(ctx, cmd)
}

// AwardBadge awards one badge by name or ID regardless of its criterion.
func (e *Engine) AwardBadge(ctx context.Context, cmd command.AwardBadgeCommand) (*command.AwardOutcome, error) {
	return e.badges.AwardSpecific(ctx, cmd)
}

// ContributeClanXP credits a member's contribution to a clan.
func (e *Engine) ContributeClanXP(ctx context.Context, cmd command.ContributeClanXPCommand) (*command.ContributeClanXPResult, error) {
	res, err := e.clan.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Amount > 0 {
		e.trackQuests(ctx, cmd.UserID, quest.Activity{ClanXP: cmd.Amount})
	}
	return res, nil
}

// JoinClan adds a user to a clan.
func (e *Engine) JoinClan(ctx context.Context, cmd command.JoinClanCommand) (*command.JoinClanResult, error) {
	return e.join.Handle(ctx, cmd)
}

// RegisterUser creates the progress record for a new user.
func (e *Engine) RegisterUser(ctx context.Context, cmd command.RegisterUserCommand) (*user.Progress, error) {
	return e.provision.RegisterUser(ctx, cmd)
}

// CreateHabit creates a habit for a user.
func (e *Engine) CreateHabit(ctx context.Context, cmd command.CreateHabitCommand) (*habit.Habit, error) {
	return e.provision.CreateHabit(ctx, cmd)
}

// CreateClan creates a clan and joins its owner.
func (e *Engine) CreateClan(ctx context.Context, cmd command.CreateClanCommand) (*clan.Clan, error) {
	return e.provision.CreateClan(ctx, cmd)
}

// ═══════════════════════════════════════════════════════════════════════════
// Queries
// ═══════════════════════════════════════════════════════════════════════════

// UserStats returns the progress summary of a user.
func (e *Engine) UserStats(ctx context.Context, q query.GetUserStatsQuery) (*query.UserStatsDTO, error) {
	return e.userStats.Handle(ctx, q)
}

// StreakStats returns streak statistics across a user's habits.
func (e *Engine) StreakStats(ctx context.Context, q query.GetStreakStatsQuery) (*query.StreakStatsDTO, error) {
	if q.Location == nil {
		q.Location = e.loc
	}
	return e.streakStats.Handle(ctx, q)
}

// ClanProgress returns clan progress and top contributors.
func (e *Engine) ClanProgress(ctx context.Context, q query.GetClanProgressQuery) (*query.ClanProgressDTO, error) {
	return e.clanProgress.Handle(ctx, q)
}

// BadgeProgress returns the earned / in-progress / locked badge breakdown.
func (e *Engine) BadgeProgress(ctx context.Context, q query.GetBadgeProgressQuery) (*query.BadgeProgressDTO, error) {
	return e.badgeProgress.Handle(ctx, q)
}

// ActiveQuests assigns the current quests if needed and returns them with
// their catalog details.
func (e *Engine) ActiveQuests(ctx context.Context, userID string) (*query.ActiveQuestsDTO, error) {
	if _, err := e.quests.Assign(ctx, command.AssignQuestsCommand{UserID: userID}); err != nil {
		return nil, err
	}
	return e.activeQuests.Handle(ctx, query.GetActiveQuestsQuery{UserID: userID, Location: e.quests.Location()})
}

// QuestCatalog returns the daily and weekly quest definitions.
func (e *Engine) QuestCatalog() (daily, weekly []quest.Definition) {
	return quest.DailyQuests(), quest.WeeklyQuests()
}

// Leaderboard returns a page of the user or clan ranking.
func (e *Engine) Leaderboard(ctx context.Context, q query.GetLeaderboardQuery) (*query.GetLeaderboardResult, error) {
	return e.leaderboard.Handle(ctx, q)
}
