package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

const (
	DefaultQueueSize        = 100
	DefaultSweepInterval    = 15 * time.Minute
	DefaultSweepConcurrency = 4
)

type StreakRecomputer interface {
	Recompute(ctx context.Context, habitID string, today civil.Date) (*domain.Habit, error)
	RecomputeUser(ctx context.Context, userID string, today civil.Date) (int, error)
}

type StatusRefresher interface {
	Status(ctx context.Context, userID string, forceRefresh bool) (*domain.OverdueReport, error)
	Invalidate(userID string)
}

type UserLister interface {
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

type StreakJob struct {
	HabitID string
	UserID  string
}

type Options struct {
	QueueSize     int
	SweepInterval time.Duration
	Concurrency   int
	Location      *time.Location
	Clock         func() time.Time
	Logger        *zap.Logger
}

// StreakWorker recomputes streaks off the request path. It drains queued
// jobs and periodically sweeps every active user so that gaps are charged
// and severity is re-evaluated even when nobody opens the app.
type StreakWorker struct {
	streaks StreakRecomputer
	status  StatusRefresher
	users   UserLister
	jobs    chan StreakJob

	interval    time.Duration
	concurrency int
	loc         *time.Location
	clock       func() time.Time
	logger      *zap.Logger

	dropped atomic.Int64
	done    chan struct{}
}

func NewStreakWorker(streaks StreakRecomputer, status StatusRefresher, users UserLister, opts Options) *StreakWorker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultSweepConcurrency
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &StreakWorker{
		streaks:     streaks,
		status:      status,
		users:       users,
		jobs:        make(chan StreakJob, opts.QueueSize),
		interval:    opts.SweepInterval,
		concurrency: opts.Concurrency,
		loc:         opts.Location,
		clock:       opts.Clock,
		logger:      opts.Logger.Named("streak_worker"),
		done:        make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled. A negative sweep interval
// disables the periodic sweep.
func (w *StreakWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		var tick <-chan time.Time
		if w.interval > 0 {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		w.logger.Info("streak worker started", zap.Duration("sweep_interval", w.interval))
		for {
			select {
			case job := <-w.jobs:
				w.processJob(ctx, job)
			case <-tick:
				if _, err := w.Sweep(ctx); err != nil {
					w.logger.Error("sweep failed", zap.Error(err))
				}
			case <-ctx.Done():
				w.logger.Info("streak worker shutting down", zap.Int("pending_jobs", len(w.jobs)))
				return
			}
		}
	}()
}

// Done is closed once the worker loop has returned.
func (w *StreakWorker) Done() <-chan struct{} {
	return w.done
}

// Enqueue never blocks. It reports false and drops the job when the queue is
// full; the next sweep picks the habit up again.
func (w *StreakWorker) Enqueue(habitID, userID string) bool {
	select {
	case w.jobs <- StreakJob{HabitID: habitID, UserID: userID}:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("queue full, dropping job", zap.String("habit_id", habitID))
		return false
	}
}

func (w *StreakWorker) Dropped() int64 {
	return w.dropped.Load()
}

func (w *StreakWorker) today() civil.Date {
	return domain.DateIn(w.clock(), w.loc)
}

func (w *StreakWorker) processJob(ctx context.Context, job StreakJob) {
	habit, err := w.streaks.Recompute(ctx, job.HabitID, w.today())
	if err != nil {
		w.logger.Error("recompute failed", zap.String("habit_id", job.HabitID), zap.Error(err))
		return
	}

	userID := job.UserID
	if userID == "" && habit != nil {
		userID = habit.UserID
	}
	if userID != "" {
		w.refresh(ctx, userID)
	}
}

// Sweep recomputes the streaks of every active user and refreshes their
// severity. It returns the number of users processed without error.
func (w *StreakWorker) Sweep(ctx context.Context) (int, error) {
	userIDs, err := w.users.ListActiveUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep: list users: %w", err)
	}

	today := w.today()
	var ok atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			if _, err := w.streaks.RecomputeUser(gctx, userID, today); err != nil {
				w.logger.Warn("sweep: user recompute incomplete", zap.String("user_id", userID), zap.Error(err))
			} else {
				ok.Add(1)
			}
			w.refresh(gctx, userID)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return int(ok.Load()), err
	}

	w.logger.Debug("sweep finished", zap.Int("users", len(userIDs)), zap.Int64("ok", ok.Load()))
	return int(ok.Load()), nil
}

func (w *StreakWorker) refresh(ctx context.Context, userID string) {
	if w.status == nil {
		return
	}
	w.status.Invalidate(userID)
	if _, err := w.status.Status(ctx, userID, true); err != nil {
		w.logger.Warn("status refresh failed", zap.String("user_id", userID), zap.Error(err))
	}
}
