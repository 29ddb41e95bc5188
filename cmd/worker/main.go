// Package main is the entry point of the progression engine worker.
//
// The worker owns the engine's background duties:
//   - seeding the badge catalog
//   - scanning for missed days after midnight and reporting broken streaks
//   - rebuilding the user and clan leaderboards from the stores of record
//   - serving health checks
//
// Request-handling processes embed the same engine (application.NewEngine)
// over the same Postgres and Redis, so locks and events are shared.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habituate/progression-engine/config"
	"github.com/habituate/progression-engine/internal/application"
	"github.com/habituate/progression-engine/internal/application/command"
	"github.com/habituate/progression-engine/internal/application/eventhandler"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/infrastructure/locking"
	"github.com/habituate/progression-engine/internal/infrastructure/messaging"
	"github.com/habituate/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/habituate/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/habituate/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/habituate/progression-engine/internal/infrastructure/scheduler"
	"github.com/habituate/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/habituate/progression-engine/internal/infrastructure/telemetry"
	opshttp "github.com/habituate/progression-engine/internal/interface/http"
	"github.com/habituate/progression-engine/internal/interface/http/handlers"
	"github.com/habituate/progression-engine/pkg/circuitbreaker"
	"github.com/habituate/progression-engine/pkg/logger"
	"github.com/habituate/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// closer is a named shutdown step, run in reverse registration order.
type closer struct {
	name string
	fn   func(context.Context) error
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.ParseFormat(cfg.Observability.LogFormat),
		AddSource: cfg.IsDevelopment(),
		Service:   cfg.App.Name,
	})
	slog.SetDefault(log)

	log.Info("starting progression worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := c.fn(shutdownCtx); err != nil {
				log.Error("shutdown step failed", "step", c.name, logger.Err(err))
				continue
			}
			log.Info("shutdown step completed", "step", c.name)
		}
	}()

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.ProviderConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		Endpoint:    cfg.Observability.TracingEndpoint,
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	closers = append(closers, closer{"tracing", shutdownTracing})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PERSISTENCE
	// ─────────────────────────────────────────────────────────────────────────
	repos, err := openStore(ctx, cfg, log, health, &closers)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. LOCKS, LEADERBOARD, EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		locker  shared.Locker
		ranking leaderboard.Ranking
		bus     shared.EventBus
		metrics func() *messaging.EventBusMetrics
		breaker *circuitbreaker.CircuitBreaker
	)

	if cfg.Redis.Disabled {
		log.Warn("redis disabled: locks and leaderboard are local to this process")
		locker = locking.NewKeyedMutex()
		ranking = memory.NewLeaderboard()
		local := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
			AsyncMode:      cfg.Events.Async,
			WorkerPoolSize: cfg.Events.WorkerPool,
			Logger:         log,
			EnableMetrics:  true,
		})
		closers = append(closers, closer{"event bus", func(context.Context) error { return local.Close() }})
		bus, metrics = local, local.Metrics
	} else {
		cache, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
			return redis.NewCache(ctx, redis.Config{
				Host:         cfg.Redis.Host,
				Port:         cfg.Redis.Port,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				PoolSize:     cfg.Redis.PoolSize,
				MinIdleConns: cfg.Redis.MinIdleConns,
				MaxRetries:   3,
				DialTimeout:  cfg.Redis.DialTimeout,
				ReadTimeout:  cfg.Redis.ReadTimeout,
				WriteTimeout: cfg.Redis.WriteTimeout,
				KeyPrefix:    cfg.Redis.KeyPrefix,
			})
		}, startupRetryOptions(log, "redis")...)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, closer{"redis", func(context.Context) error { return cache.Close() }})
		health.AddCheck("redis", handlers.NewPingCheck(cache))
		log.Info("redis connection established", "addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))

		locker = redis.NewLocker(cache, redis.LockerConfig{TTL: cfg.Progression.LockTTL, Logger: log})

		breaker = circuitbreaker.RankingBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
		ranking = redis.NewGuardedRanking(redis.NewLeaderboardCache(cache), breaker)

		remote, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:     cache.Client(),
			Channel:    cfg.Events.Channel,
			InstanceID: cfg.Events.InstanceID,
			LocalBusConfig: messaging.InMemoryEventBusConfig{
				AsyncMode:      cfg.Events.Async,
				WorkerPoolSize: cfg.Events.WorkerPool,
				EnableMetrics:  true,
			},
			Logger: log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		closers = append(closers, closer{"event bus", func(context.Context) error { return remote.Close() }})
		bus, metrics = remote, remote.Metrics
	}

	if cfg.Events.BufferSize > 0 {
		buffered := messaging.NewBufferedEventBus(messaging.BufferedEventBusConfig{
			Inner:         bus,
			BufferSize:    cfg.Events.BufferSize,
			FlushInterval: cfg.Events.FlushInterval,
			Logger:        log,
		})
		// Registered after the inner bus, so it flushes first.
		closers = append(closers, closer{"event buffer", func(context.Context) error { return buffered.Close() }})
		bus = buffered
	}

	projection := eventhandler.NewOnProgressChangedHandler(ranking, log, eventhandler.DefaultProgressChangedConfig())
	if err := projection.Register(bus); err != nil {
		return fmt.Errorf("failed to register leaderboard projection: %w", err)
	}

	publisher := messaging.MultiPublisher{
		bus,
		telemetry.NewLogSink(log, logger.ParseLevel(cfg.Observability.EventLogLevel)),
	}
	if cfg.Observability.TracingEnabled {
		publisher = append(publisher, telemetry.NewSpanSink(nil))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	engineCfg := application.DefaultConfig()
	engineCfg.AwardXP.GrantMilestoneBonus = cfg.Progression.GrantMilestoneBonus
	engineCfg.CompleteHabit = command.CompleteHabitConfig{
		Rules: habit.Rules{
			BaseXP:             cfg.Progression.BaseHabitXP,
			ExtraLifeThreshold: cfg.Progression.ExtraLifeThreshold,
		},
		Location: cfg.App.Location,
	}
	engineCfg.ExtraLife.Location = cfg.App.Location
	engineCfg.Quests.Location = cfg.App.Location
	engineCfg.ClanMaxMembers = cfg.Progression.ClanMaxMembers

	engine, err := application.NewEngine(application.Deps{
		Repos:     repos,
		Locker:    locker,
		Publisher: publisher,
		Ranking:   ranking,
		Logger:    log,
	}, engineCfg)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	if err := retry.ConflictRetrier().Do(ctx, engine.EnsureCatalog); err != nil {
		return fmt.Errorf("failed to seed badge catalog: %w", err)
	}
	log.Info("badge catalog seeded")

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:       log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
	})

	if cfg.Scheduler.Enabled {
		missedSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.MissedDaysCron)
		if err != nil {
			return fmt.Errorf("SCHEDULER_MISSED_DAYS_CRON: %w", err)
		}
		rebuildSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.LeaderboardCron)
		if err != nil {
			return fmt.Errorf("SCHEDULER_LEADERBOARD_CRON: %w", err)
		}

		missed := jobs.NewDetectMissedDaysJob(repos.Users, engine, log, jobs.DetectMissedDaysConfig{
			Concurrency: cfg.Scheduler.MissedDaysConcurrency,
			Location:    cfg.App.Location,
			Timeout:     cfg.Scheduler.JobTimeout,
		})
		if err := sched.Register(missed, missedSchedule); err != nil {
			return fmt.Errorf("failed to register %s: %w", missed.Name(), err)
		}

		rebuild := jobs.NewRebuildLeaderboardJob(repos.Users, repos.Clans, ranking, log, jobs.DefaultRebuildLeaderboardConfig())
		if err := sched.Register(rebuild, rebuildSchedule); err != nil {
			return fmt.Errorf("failed to register %s: %w", rebuild.Name(), err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		closers = append(closers, closer{"scheduler", func(context.Context) error { return sched.Stop() }})
		health.AddOptionalCheck("scheduler", handlers.NewRunningCheck(sched))

		// A fresh Redis starts with empty boards.
		go func() {
			if _, err := sched.RunNow(ctx, rebuild.Name()); err != nil {
				log.Warn("initial leaderboard rebuild failed", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. OPS ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	var serverErr <-chan error
	if cfg.App.OpsAddr != "" {
		opsCfg := opshttp.DefaultConfig()
		opsCfg.Addr = cfg.App.OpsAddr
		server := opshttp.NewServer(opsCfg, opshttp.Dependencies{
			Health: health,
			Status: map[string]opshttp.StatusFunc{
				"jobs":    func() interface{} { return sched.ListJobs() },
				"history": func() interface{} { return sched.GetHistory(50) },
				"events": func() interface{} {
					if m := metrics(); m != nil {
						return m.Snapshot()
					}
					return nil
				},
				"ranking": func() interface{} {
					if breaker == nil {
						return map[string]string{"backend": "memory"}
					}
					return breaker.Snapshot()
				},
			},
			Logger: log,
		})
		serverErr = server.StartAsync()
		closers = append(closers, closer{"ops http", server.Shutdown})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. WAIT FOR SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progression worker is running", "ops_addr", cfg.App.OpsAddr)

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal", "timeout", cfg.App.ShutdownTimeout.String())
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("ops http server: %w", err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// openStore connects to Postgres, or falls back to the in-memory store when
// no database is configured (rejected by config validation in production).
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger, health *handlers.CompositeHealthChecker, closers *[]closer) (application.Repositories, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set: using the in-memory store, progress is lost on exit")
		store := memory.NewStore()
		return application.Repositories{
			Users:  store.Users(),
			Habits: store.Habits(),
			Clans:  store.Clans(),
			Badges: store.Badges(),
			Quests: store.Quests(),
		}, nil
	}

	log.Info("connecting to database...")
	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		conn, err := postgres.NewConnectionFromURLWithLimits(ctx, cfg.Database.URL, postgres.PoolLimits{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if errors.Is(err, postgres.ErrInvalidURL) {
			return nil, retry.Permanent(err)
		}
		return conn, err
	}, startupRetryOptions(log, "postgres")...)
	if err != nil {
		return application.Repositories{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	*closers = append(*closers, closer{"database", func(context.Context) error {
		conn.Close()
		return nil
	}})
	health.AddCheck("postgres", handlers.NewPingCheck(conn))
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return application.Repositories{}, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	store := postgres.NewStore(conn)
	return application.Repositories{
		Users:  store.Users(),
		Habits: store.Habits(),
		Clans:  store.Clans(),
		Badges: store.Badges(),
		Quests: store.Quests(),
	}, nil
}

func startupRetryOptions(log *slog.Logger, target string) []retry.Option {
	return retry.StartupOptions(func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed", "target", target, "attempt", attempt, "retry_in", delay, logger.Err(err))
	})
}
