package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var ErrFutureCompletion = errors.New("cannot complete a habit in the future")

// Enqueuer accepts a habit for asynchronous streak recomputation.
type Enqueuer interface {
	Enqueue(habitID, userID string) bool
}

type StreakRecomputer interface {
	Recompute(ctx context.Context, habitID string, today civil.Date) (*domain.Habit, error)
}

type CompletionOptions struct {
	Location *time.Location
	Clock    func() time.Time
	Logger   *zap.Logger
}

type CompletionService struct {
	repo      domain.CompletionRepository
	habitRepo domain.HabitRepository
	streaks   StreakRecomputer
	queue     Enqueuer
	status    StatusInvalidator
	loc       *time.Location
	clock     func() time.Time
	logger    *zap.Logger
}

func NewCompletionService(repo domain.CompletionRepository, habitRepo domain.HabitRepository, streaks StreakRecomputer, queue Enqueuer, status StatusInvalidator, opts CompletionOptions) *CompletionService {
	s := &CompletionService{
		repo:      repo,
		habitRepo: habitRepo,
		streaks:   streaks,
		queue:     queue,
		status:    status,
		loc:       opts.Location,
		clock:     opts.Clock,
		logger:    orNop(opts.Logger),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

type CompleteInput struct {
	HabitID string
	UserID  string
	// Date defaults to today when zero.
	Date civil.Date
}

// Complete records a completion and brings the streak up to date. When the
// synchronous recompute fails the habit is handed to the worker and the
// completion still counts.
func (s *CompletionService) Complete(ctx context.Context, input CompleteInput) (*domain.CompletionRecord, *domain.Habit, error) {
	now := s.clock()
	today := domain.DateIn(now, s.loc)

	if input.Date == (civil.Date{}) {
		input.Date = today
	}
	if input.Date.After(today) {
		return nil, nil, ErrFutureCompletion
	}

	habit, err := s.ownedHabit(ctx, input.HabitID, input.UserID)
	if err != nil {
		return nil, nil, err
	}

	record := domain.NewCompletionRecord(habit.ID, habit.UserID, input.Date, now)
	if err := record.Validate(); err != nil {
		return nil, nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, nil, err
	}

	s.invalidate(habit.UserID)

	updated, err := s.streaks.Recompute(ctx, habit.ID, today)
	if err != nil {
		s.logger.Warn("synchronous streak recompute failed, deferring to worker",
			zap.String("habit_id", habit.ID),
			zap.Error(err),
		)
		s.enqueue(habit)
		return record, habit, nil
	}

	return record, updated, nil
}

// Uncomplete removes the completion of a date. The streak is not rolled
// back; later recomputes simply no longer see the date.
func (s *CompletionService) Uncomplete(ctx context.Context, habitID, userID string, date civil.Date) error {
	habit, err := s.ownedHabit(ctx, habitID, userID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, habit.ID, date); err != nil {
		return err
	}

	s.invalidate(habit.UserID)
	s.enqueue(habit)
	return nil
}

func (s *CompletionService) ListByHabitID(ctx context.Context, habitID, userID string) ([]*domain.CompletionRecord, error) {
	if _, err := s.ownedHabit(ctx, habitID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByHabitID(ctx, habitID)
}

func (s *CompletionService) ownedHabit(ctx context.Context, habitID, userID string) (*domain.Habit, error) {
	habit, err := s.habitRepo.GetByID(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("completion service: %w", err)
	}
	if habit.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return habit, nil
}

func (s *CompletionService) enqueue(habit *domain.Habit) {
	if s.queue == nil {
		return
	}
	if !s.queue.Enqueue(habit.ID, habit.UserID) {
		s.logger.Warn("streak queue full, recompute dropped until next sweep",
			zap.String("habit_id", habit.ID),
		)
	}
}

func (s *CompletionService) invalidate(userID string) {
	if s.status != nil {
		s.status.Invalidate(userID)
	}
}
