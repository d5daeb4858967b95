package services

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

const DefaultStreakAttempts = 3

type StreakService struct {
	habitRepo      domain.HabitRepository
	completionRepo domain.CompletionRepository
	store          domain.StreakStore
	locks          *keyedMutex
	maxAttempts    int
	logger         *zap.Logger
}

func NewStreakService(habitRepo domain.HabitRepository, completionRepo domain.CompletionRepository, store domain.StreakStore, maxAttempts int, logger *zap.Logger) *StreakService {
	if maxAttempts < 1 {
		maxAttempts = DefaultStreakAttempts
	}
	return &StreakService{
		habitRepo:      habitRepo,
		completionRepo: completionRepo,
		store:          store,
		locks:          newKeyedMutex(),
		maxAttempts:    maxAttempts,
		logger:         orNop(logger),
	}
}

// Recompute brings the streak fields of a habit up to date as of today and
// persists them together with any freeze consumption. Calls for the same
// habit are serialised; a version conflict on either record restarts the
// whole recompute, which is safe because it is idempotent.
func (s *StreakService) Recompute(ctx context.Context, habitID string, today civil.Date) (*domain.Habit, error) {
	unlock := s.locks.Lock(habitID)
	defer unlock()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		habit, err := s.recomputeOnce(ctx, habitID, today)
		if err == nil {
			return habit, nil
		}

		if !errors.Is(err, domain.ErrHabitConflict) && !errors.Is(err, domain.ErrFreezeConflict) {
			streakRecomputeTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("streak service: recompute %s: %w", habitID, err)
		}

		streakRecomputeTotal.WithLabelValues("conflict").Inc()
		s.logger.Debug("streak commit conflict, retrying",
			zap.String("habit_id", habitID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	return nil, fmt.Errorf("streak service: habit %s: %w", habitID, domain.ErrStreakContention)
}

func (s *StreakService) recomputeOnce(ctx context.Context, habitID string, today civil.Date) (*domain.Habit, error) {
	habit, err := s.habitRepo.GetByID(ctx, habitID)
	if err != nil {
		return nil, err
	}

	ledger := s.loadLedger(ctx, habit)

	var result domain.StreakResult
	err = s.store.CommitStreak(ctx, habit.UserID, func(balance *domain.FreezeBalance) (*domain.Habit, error) {
		result = domain.RecomputeStreak(habit, ledger, balance, today)
		if !result.Changed {
			return nil, nil
		}
		return result.Habit, nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Changed {
		streakRecomputeTotal.WithLabelValues("unchanged").Inc()
		return habit, nil
	}

	streakRecomputeTotal.WithLabelValues("changed").Inc()
	if result.FreezeDelta < 0 {
		freezeDaysConsumedTotal.WithLabelValues("streak").Add(float64(-result.FreezeDelta))
	}
	if result.Broken {
		streakBreaksTotal.Inc()
	}

	s.logger.Info("streak updated",
		zap.String("habit_id", habit.ID),
		zap.String("user_id", habit.UserID),
		zap.Int("streak", result.Habit.Streak),
		zap.Int("highest", result.Habit.HighestStreakAchieved),
		zap.Int("freeze_delta", result.FreezeDelta),
		zap.Bool("broken", result.Broken),
	)

	return result.Habit, nil
}

// loadLedger never fails: unreadable completion data counts as not
// completed.
func (s *StreakService) loadLedger(ctx context.Context, habit *domain.Habit) domain.CompletionLedger {
	records, err := s.completionRepo.ListByHabitID(ctx, habit.ID)
	if err != nil {
		s.logger.Warn("completion data unavailable, treating as not completed",
			zap.String("habit_id", habit.ID),
			zap.Error(err),
		)
		return domain.EmptyLedger()
	}
	return domain.NewCompletionSet(records)
}

// RecomputeUser recomputes every active habit of a user and returns how many
// succeeded. Failures are joined so one bad habit does not stop the rest.
func (s *StreakService) RecomputeUser(ctx context.Context, userID string, today civil.Date) (int, error) {
	habits, err := s.habitRepo.ListByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("streak service: list habits for %s: %w", userID, err)
	}

	var errs []error
	done := 0
	for _, h := range habits {
		if _, err := s.Recompute(ctx, h.ID, today); err != nil {
			if errors.Is(err, domain.ErrHabitNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		done++
	}

	return done, errors.Join(errs...)
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
