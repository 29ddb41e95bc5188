package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, int64(10), cfg.Progression.BaseHabitXP)
	assert.Equal(t, 100, cfg.Progression.ExtraLifeThreshold)
	assert.False(t, cfg.Progression.GrantMilestoneBonus)
	assert.Equal(t, 50, cfg.Progression.ClanMaxMembers)
	assert.Equal(t, "5 0 * * *", cfg.Scheduler.MissedDaysCron)
	assert.Equal(t, 0, cfg.Events.BufferSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("APP_TIMEZONE", "UTC+5")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "engine")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "progress")
	t.Setenv("PROGRESSION_GRANT_MILESTONE_BONUS", "true")
	t.Setenv("PROGRESSION_LOCK_TTL", "5s")
	t.Setenv("SCHEDULER_LEADERBOARD_CRON", "*/15 * * * *")
	t.Setenv("REDIS_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Environment)
	_, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, cfg.App.Location).Zone()
	assert.Equal(t, 5*3600, offset)
	assert.Equal(t, "postgres://engine:secret@db:5432/progress?sslmode=require", cfg.Database.URL)
	assert.True(t, cfg.Progression.GrantMilestoneBonus)
	assert.Equal(t, 5*time.Second, cfg.Progression.LockTTL)
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.LeaderboardCron)
	// Unparseable values fall back to the default.
	assert.Equal(t, 6379, cfg.Redis.Port)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	assert.ErrorContains(t, err, "APP_TIMEZONE")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Environment: EnvProduction, Location: time.UTC},
			Database: DatabaseConfig{URL: "postgres://localhost/db", MaxConns: 10, MinConns: 2},
			Redis:    RedisConfig{Port: 6379},
			Progression: ProgressionConfig{
				BaseHabitXP:        10,
				ExtraLifeThreshold: 100,
				LockTTL:            time.Second,
				ClanMaxMembers:     50,
			},
			Scheduler: SchedulerConfig{
				Enabled:               true,
				MissedDaysCron:        "5 0 * * *",
				LeaderboardCron:       "0 * * * *",
				MissedDaysConcurrency: 4,
				TickInterval:          time.Second,
			},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown env", func(c *Config) { c.App.Environment = "prod" }, "APP_ENV"},
		{"production without database", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"min conns above max", func(c *Config) { c.Database.MinConns = 20 }, "DB_MIN_CONNS"},
		{"negative base xp", func(c *Config) { c.Progression.BaseHabitXP = -1 }, "PROGRESSION_BASE_HABIT_XP"},
		{"zero lock ttl", func(c *Config) { c.Progression.LockTTL = 0 }, "PROGRESSION_LOCK_TTL"},
		{"bad cron", func(c *Config) { c.Scheduler.MissedDaysCron = "61 * * * *" }, "SCHEDULER_MISSED_DAYS_CRON"},
		{"zero interval", func(c *Config) { c.Scheduler.LeaderboardCron = "@every 0s" }, "SCHEDULER_LEADERBOARD_CRON"},
		{"negative buffer", func(c *Config) { c.Events.BufferSize = -1 }, "EVENTS_BUFFER_SIZE"},
		{"tracing without endpoint", func(c *Config) { c.Observability.TracingEnabled = true }, "TRACING_ENDPOINT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}

	t.Run("interval schedule", func(t *testing.T) {
		c := valid()
		c.Scheduler.LeaderboardCron = "@every 15m"
		assert.NoError(t, c.Validate())
	})

	t.Run("disabled scheduler skips cron checks", func(t *testing.T) {
		c := valid()
		c.Scheduler.Enabled = false
		c.Scheduler.MissedDaysCron = "garbage"
		assert.NoError(t, c.Validate())
	})
}
