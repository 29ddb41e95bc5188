package postgres

import (
	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// Store groups the repositories sharing one connection pool.
type Store struct {
	users  *UserRepository
	habits *HabitRepository
	clans  *ClanRepository
	badges *BadgeRepository
	quests *QuestRepository
}

// NewStore creates the repositories over conn.
func NewStore(conn *Connection) *Store {
	return &Store{
		users:  NewUserRepository(conn),
		habits: NewHabitRepository(conn),
		clans:  NewClanRepository(conn),
		badges: NewBadgeRepository(conn),
		quests: NewQuestRepository(conn),
	}
}

// Users returns the user progress repository.
func (s *Store) Users() user.Repository { return s.users }

// Habits returns the habit repository.
func (s *Store) Habits() habit.Repository { return s.habits }

// Clans returns the clan repository.
func (s *Store) Clans() clan.Repository { return s.clans }

// Badges returns the badge repository.
func (s *Store) Badges() badge.Repository { return s.badges }

// Quests returns the user quest repository.
func (s *Store) Quests() quest.Repository { return s.quests }
