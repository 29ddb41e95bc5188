package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create user progress, habits and the completion log
-- Version: 001

CREATE TABLE IF NOT EXISTS user_progress (
    id VARCHAR(64) PRIMARY KEY,
    xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    total_points BIGINT NOT NULL DEFAULT 0,
    extra_lives INTEGER NOT NULL DEFAULT 0,
    clan_id VARCHAR(64),
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_points CHECK (total_points >= 0),
    CONSTRAINT valid_lives CHECK (extra_lives >= 0)
);

CREATE INDEX IF NOT EXISTS idx_user_progress_xp ON user_progress(xp DESC);
CREATE INDEX IF NOT EXISTS idx_user_progress_clan ON user_progress(clan_id) WHERE clan_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS habits (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL REFERENCES user_progress(id) ON DELETE CASCADE,
    title VARCHAR(200) NOT NULL,
    difficulty VARCHAR(10) NOT NULL DEFAULT 'medium',
    streak INTEGER NOT NULL DEFAULT 0,
    best_streak INTEGER NOT NULL DEFAULT 0,
    total_completions INTEGER NOT NULL DEFAULT 0,
    last_completed DATE,
    used_extra_life BOOLEAN NOT NULL DEFAULT FALSE,
    extra_life_date DATE,
    missed_days INTEGER NOT NULL DEFAULT 0,
    extra_life_granted BOOLEAN NOT NULL DEFAULT FALSE,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_difficulty CHECK (difficulty IN ('easy', 'medium', 'hard')),
    CONSTRAINT valid_streak CHECK (streak >= 0 AND best_streak >= streak)
);

CREATE INDEX IF NOT EXISTS idx_habits_user_id ON habits(user_id);

-- One row per habit per calendar day enforces the daily completion rule.
CREATE TABLE IF NOT EXISTS habit_completions (
    id VARCHAR(64) PRIMARY KEY,
    habit_id VARCHAR(64) NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
    user_id VARCHAR(64) NOT NULL,
    completed_on DATE NOT NULL,
    xp_earned BIGINT NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(habit_id, completed_on)
);

CREATE INDEX IF NOT EXISTS idx_habit_completions_habit_date ON habit_completions(habit_id, completed_on DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS habit_completions;
DROP TABLE IF EXISTS habits;
DROP TABLE IF EXISTS user_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE CLANS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create clans and the contribution ledger
-- Version: 002

CREATE TABLE IF NOT EXISTS clans (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(32) NOT NULL DEFAULT '',
    owner_id VARCHAR(64) NOT NULL,
    is_private BOOLEAN NOT NULL DEFAULT FALSE,
    max_members INTEGER NOT NULL DEFAULT 50,
    total_xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    member_count INTEGER NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_member_count CHECK (member_count >= 0 AND member_count <= max_members)
);

CREATE INDEX IF NOT EXISTS idx_clans_total_xp ON clans(total_xp DESC);

CREATE TABLE IF NOT EXISTS clan_members (
    clan_id VARCHAR(64) NOT NULL REFERENCES clans(id) ON DELETE CASCADE,
    user_id VARCHAR(64) NOT NULL REFERENCES user_progress(id) ON DELETE CASCADE,
    xp_contributed BIGINT NOT NULL DEFAULT 0,
    role VARCHAR(20) NOT NULL DEFAULT 'member',
    version BIGINT NOT NULL DEFAULT 1,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (clan_id, user_id),
    CONSTRAINT valid_role CHECK (role IN ('member', 'moderator', 'leader')),
    CONSTRAINT valid_contribution CHECK (xp_contributed >= 0)
);

-- A user belongs to at most one clan.
CREATE UNIQUE INDEX IF NOT EXISTS idx_clan_members_user ON clan_members(user_id);
`

const migration002Down = `
DROP TABLE IF EXISTS clan_members;
DROP TABLE IF EXISTS clans;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE BADGES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create the badge catalog and earned badges
-- Version: 003

CREATE TABLE IF NOT EXISTS badge_definitions (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(100) NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(32) NOT NULL DEFAULT '',
    type VARCHAR(20) NOT NULL,
    rarity VARCHAR(20) NOT NULL DEFAULT 'common',
    requirement BIGINT NOT NULL DEFAULT 0,
    xp_reward BIGINT NOT NULL DEFAULT 0,

    CONSTRAINT valid_type CHECK (type IN ('streak', 'completion', 'level', 'social', 'clan', 'special')),
    CONSTRAINT valid_rarity CHECK (rarity IN ('common', 'rare', 'epic', 'legendary'))
);

-- Append-only; the primary key makes awarding idempotent.
CREATE TABLE IF NOT EXISTS user_badges (
    id VARCHAR(64) NOT NULL UNIQUE,
    user_id VARCHAR(64) NOT NULL REFERENCES user_progress(id) ON DELETE CASCADE,
    badge_id VARCHAR(64) NOT NULL REFERENCES badge_definitions(id),
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, badge_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS user_badges;
DROP TABLE IF EXISTS badge_definitions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE USER QUESTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create quests assigned to users per period
-- Version: 004

-- The catalog lives in code; rows keep the requirement and reward they were
-- assigned with.
CREATE TABLE IF NOT EXISTS user_quests (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL REFERENCES user_progress(id) ON DELETE CASCADE,
    quest_id VARCHAR(64) NOT NULL,
    quest_type VARCHAR(10) NOT NULL,
    period_start DATE NOT NULL,
    status VARCHAR(10) NOT NULL DEFAULT 'active',
    progress INTEGER NOT NULL DEFAULT 0,
    requirement INTEGER NOT NULL,
    xp_reward BIGINT NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT one_quest_per_period UNIQUE (user_id, quest_id, period_start),
    CONSTRAINT valid_quest_type CHECK (quest_type IN ('daily', 'weekly')),
    CONSTRAINT valid_quest_status CHECK (status IN ('active', 'completed', 'expired')),
    CONSTRAINT progress_within_requirement CHECK (progress >= 0 AND progress <= requirement)
);

CREATE INDEX IF NOT EXISTS idx_user_quests_user_status ON user_quests(user_id, status);
`

const migration004Down = `
DROP TABLE IF EXISTS user_quests;
`
