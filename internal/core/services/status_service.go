package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

// StatusInvalidator is implemented by anything caching per-user overdue
// state that must be dropped after a habit or completion write.
type StatusInvalidator interface {
	Invalidate(userID string)
}

type StatusOptions struct {
	Bucket    time.Duration
	Location  *time.Location
	Clock     func() time.Time
	Publisher domain.SeverityPublisher
	Logger    *zap.Logger
}

// StatusService answers "what is overdue right now" per user and notifies
// the publisher whenever a user's severity moves.
type StatusService struct {
	habitRepo      domain.HabitRepository
	completionRepo domain.CompletionRepository
	publisher      domain.SeverityPublisher
	bucket         time.Duration
	loc            *time.Location
	clock          func() time.Time
	logger         *zap.Logger

	mu         sync.Mutex
	evaluators map[string]*OverdueEvaluator
	severities map[string]domain.SeverityState
}

func NewStatusService(habitRepo domain.HabitRepository, completionRepo domain.CompletionRepository, opts StatusOptions) *StatusService {
	s := &StatusService{
		habitRepo:      habitRepo,
		completionRepo: completionRepo,
		publisher:      opts.Publisher,
		bucket:         opts.Bucket,
		loc:            opts.Location,
		clock:          opts.Clock,
		logger:         orNop(opts.Logger),
		evaluators:     make(map[string]*OverdueEvaluator),
		severities:     make(map[string]domain.SeverityState),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Status evaluates the user's habits at the current instant. forceRefresh
// bypasses the snapshot cache.
func (s *StatusService) Status(ctx context.Context, userID string, forceRefresh bool) (*domain.OverdueReport, error) {
	if userID == "" {
		return nil, domain.ErrHabitInvalidUserID
	}

	// The token must predate the reads so that a write plus Invalidate
	// landing in between keeps this evaluation out of the cache.
	evaluator := s.evaluator(userID)
	tok := evaluator.Begin()

	var (
		habits  []*domain.Habit
		records []*domain.CompletionRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		habits, err = s.habitRepo.ListByUserID(gctx, userID)
		if err != nil {
			return fmt.Errorf("status service: list habits: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = s.completionRepo.ListByUserID(gctx, userID)
		if err != nil {
			s.logger.Warn("completion data unavailable, treating as not completed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			records = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ledger := domain.NewCompletionSet(records)
	ledgers := make(map[string]domain.CompletionLedger, len(habits))
	for _, h := range habits {
		ledgers[h.ID] = ledger
	}

	now := s.clock().In(s.loc)
	items := evaluator.GetOverdueHabitsAt(tok, habits, ledgers, now, forceRefresh)
	severity := domain.ClassifySeverity(len(items))
	severityEvaluationsTotal.WithLabelValues(severity.String()).Inc()

	s.track(ctx, userID, severity, len(items), now)

	return &domain.OverdueReport{
		UserID:      userID,
		Severity:    severity,
		Overdue:     items,
		EvaluatedAt: now,
	}, nil
}

func (s *StatusService) Invalidate(userID string) {
	s.mu.Lock()
	e, ok := s.evaluators[userID]
	s.mu.Unlock()
	if ok {
		e.Invalidate()
	}
}

// Severity returns the last severity observed for a user.
func (s *StatusService) Severity(userID string) domain.SeverityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.severities[userID]
}

func (s *StatusService) evaluator(userID string) *OverdueEvaluator {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evaluators[userID]
	if !ok {
		e = NewOverdueEvaluator(s.bucket)
		s.evaluators[userID] = e
	}
	return e
}

func (s *StatusService) track(ctx context.Context, userID string, current domain.SeverityState, count int, now time.Time) {
	s.mu.Lock()
	previous := s.severities[userID]
	s.severities[userID] = current
	s.mu.Unlock()

	if previous == current {
		return
	}

	change := domain.SeverityChange{
		UserID:       userID,
		Previous:     previous,
		Current:      current,
		OverdueCount: count,
		At:           now,
	}

	s.logger.Info("severity changed",
		zap.String("user_id", userID),
		zap.Stringer("previous", previous),
		zap.Stringer("current", current),
		zap.Int("overdue", count),
	)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Error("failed to publish severity change",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
