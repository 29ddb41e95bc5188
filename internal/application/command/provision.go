package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVISIONING COMMANDS
// Create the records the engine mutates: a user's progress at registration,
// a habit, and a clan with its owner as the first member.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand creates a progress record.
type RegisterUserCommand struct {
	UserID     string
	InitialXP  int64
	ExtraLives int
}

// CreateHabitCommand creates a habit. An empty HabitID is generated.
type CreateHabitCommand struct {
	HabitID    string
	UserID     string
	Title      string
	Difficulty string
}

// CreateClanCommand creates a clan. An empty ClanID is generated.
type CreateClanCommand struct {
	ClanID      string
	Name        string
	Description string
	Icon        string
	OwnerID     string
	IsPrivate   bool
	MaxMembers  int
}

// ProvisionHandler creates users, habits and clans.
type ProvisionHandler struct {
	users  user.Repository
	habits habit.Repository
	clans  clan.Repository
	join   *JoinClanHandler
	clock  Clock
	logger *slog.Logger

	maxMembers int
}

// NewProvisionHandler creates a new ProvisionHandler. maxMembers is the
// default clan size when a command leaves it zero.
func NewProvisionHandler(
	users user.Repository,
	habits habit.Repository,
	clans clan.Repository,
	join *JoinClanHandler,
	clock Clock,
	logger *slog.Logger,
	maxMembers int,
) *ProvisionHandler {
	return &ProvisionHandler{
		users:      users,
		habits:     habits,
		clans:      clans,
		join:       join,
		clock:      clockOrDefault(clock),
		logger:     loggerOrDefault(logger, "provision"),
		maxMembers: maxMembers,
	}
}

// RegisterUser creates a user's progress record.
func (h *ProvisionHandler) RegisterUser(ctx context.Context, cmd RegisterUserCommand) (*user.Progress, error) {
	p, err := user.NewProgress(user.NewProgressParams{
		ID:         cmd.UserID,
		InitialXP:  cmd.InitialXP,
		ExtraLives: cmd.ExtraLives,
		Now:        h.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("register_user: %w", err)
	}
	if err := h.users.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("register_user: failed to save user: %w", err)
	}

	h.logger.Info("user registered", "user_id", p.ID, "level", p.Level)
	return p, nil
}

// CreateHabit creates a habit owned by an existing user.
func (h *ProvisionHandler) CreateHabit(ctx context.Context, cmd CreateHabitCommand) (*habit.Habit, error) {
	difficulty, err := habit.ParseDifficulty(cmd.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("create_habit: %w", err)
	}
	if _, err := h.users.GetByID(ctx, cmd.UserID); err != nil {
		return nil, fmt.Errorf("create_habit: failed to get user: %w", err)
	}

	id := cmd.HabitID
	if id == "" {
		id = uuid.NewString()
	}
	hb, err := habit.NewHabit(habit.NewHabitParams{
		ID:         id,
		UserID:     cmd.UserID,
		Title:      cmd.Title,
		Difficulty: difficulty,
		Now:        h.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("create_habit: %w", err)
	}
	if err := h.habits.Create(ctx, hb); err != nil {
		return nil, fmt.Errorf("create_habit: failed to save habit: %w", err)
	}
	return hb, nil
}

// CreateClan creates a clan and joins its owner as leader.
func (h *ProvisionHandler) CreateClan(ctx context.Context, cmd CreateClanCommand) (*clan.Clan, error) {
	if err := required("create_clan", "owner_id", cmd.OwnerID); err != nil {
		return nil, err
	}
	owner, err := h.users.GetByID(ctx, cmd.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("create_clan: failed to get owner: %w", err)
	}
	if owner.HasClan() {
		return nil, fmt.Errorf("create_clan: owner already belongs to clan %s", owner.ClanID)
	}

	id := cmd.ClanID
	if id == "" {
		id = uuid.NewString()
	}
	maxMembers := cmd.MaxMembers
	if maxMembers <= 0 {
		maxMembers = h.maxMembers
	}
	c, err := clan.NewClan(clan.NewClanParams{
		ID:          id,
		Name:        cmd.Name,
		Description: cmd.Description,
		Icon:        cmd.Icon,
		OwnerID:     cmd.OwnerID,
		IsPrivate:   cmd.IsPrivate,
		MaxMembers:  maxMembers,
		Now:         h.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("create_clan: %w", err)
	}
	if err := h.clans.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create_clan: failed to save clan: %w", err)
	}

	if h.join != nil {
		if _, err := h.join.Handle(ctx, JoinClanCommand{ClanID: c.ID, UserID: cmd.OwnerID}); err != nil {
			return nil, fmt.Errorf("create_clan: failed to join owner: %w", err)
		}
		if c, err = h.clans.GetByID(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("create_clan: failed to reload clan: %w", err)
		}
	}

	h.logger.Info("clan created", "clan_id", c.ID, "owner_id", cmd.OwnerID)
	return c, nil
}
