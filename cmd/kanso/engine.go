package main

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/cache"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/notify"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/config"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/workers"
)

// engine is the wired object graph shared by serve and sweep.
type engine struct {
	cfg    *config.Config
	loc    *time.Location
	logger *zap.Logger

	db  *sqlx.DB
	rdb *redis.Client

	habits      domain.HabitRepository
	completions domain.CompletionRepository
	freezes     domain.FreezeRepository
	streakStore domain.StreakStore

	habitSvc      *services.HabitService
	completionSvc *services.CompletionService
	freezeSvc     *services.FreezeService
	statusSvc     *services.StatusService
	streakSvc     *services.StreakService
	worker        *workers.StreakWorker
}

// newEngine connects the stores and builds every service. extra, when set,
// receives severity changes in addition to the Redis channel.
func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, memory bool, extra domain.SeverityPublisher) (*engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, loc: loc, logger: logger}

	if memory {
		store := repository.NewMemoryStore()
		e.habits, e.completions, e.freezes, e.streakStore = store.Habits(), store.Completions(), store.Freezes(), store
		logger.Info("using in-memory store")
	} else {
		db, err := repository.Connect(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		e.db = db
		e.habits = repository.NewPostgresHabitRepository(db)
		e.completions = repository.NewPostgresCompletionRepository(db)
		e.freezes = repository.NewPostgresFreezeRepository(db)
		e.streakStore = repository.NewPostgresStreakStore(db)
		logger.Info("database connected", zap.String("host", cfg.Database.Host))
	}

	publishers := notify.Multi{}
	if extra != nil {
		publishers = append(publishers, extra)
	}

	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			e.rdb = rdb
			cached := repository.NewCachedHabitRepository(e.habits, e.streakStore, rdb, cfg.Engine.HabitCacheTTL, logger)
			e.habits, e.streakStore = cached, cached
			publishers = append(publishers, notify.NewRedisPublisher(rdb, cfg.Engine.SeverityChannel))
			logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	var publisher domain.SeverityPublisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	e.statusSvc = services.NewStatusService(e.habits, e.completions, services.StatusOptions{
		Bucket:    cfg.Engine.OverdueBucket,
		Location:  loc,
		Publisher: publisher,
		Logger:    logger.Named("status"),
	})
	e.streakSvc = services.NewStreakService(e.habits, e.completions, e.streakStore, cfg.Engine.StreakAttempts, logger.Named("streak"))
	e.freezeSvc = services.NewFreezeService(e.freezes, cfg.Engine.FreezeAttempts, logger.Named("freeze"))
	e.habitSvc = services.NewHabitService(e.habits, e.statusSvc)
	e.worker = workers.NewStreakWorker(e.streakSvc, e.statusSvc, e.habits, workers.Options{
		QueueSize:     cfg.Engine.QueueSize,
		SweepInterval: cfg.Engine.SweepInterval,
		Concurrency:   cfg.Engine.SweepConcurrency,
		Location:      loc,
		Logger:        logger,
	})
	e.completionSvc = services.NewCompletionService(e.completions, e.habits, e.streakSvc, e.worker, e.statusSvc, services.CompletionOptions{
		Location: loc,
		Logger:   logger.Named("completion"),
	})

	return e, nil
}

func (e *engine) today() civil.Date {
	return domain.DateIn(time.Now(), e.loc)
}

func (e *engine) Close() {
	if e.rdb != nil {
		if err := e.rdb.Close(); err != nil {
			e.logger.Warn("redis close", zap.Error(err))
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Warn("database close", zap.Error(err))
		}
	}
}
