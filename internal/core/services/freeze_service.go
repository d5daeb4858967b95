package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

const DefaultFreezeAttempts = 5

// FreezeService is the only entry point for mutating a user's diamonds and
// freeze days outside of streak bridging. Every operation is a
// read-mutate-compare-and-swap loop on the balance version.
type FreezeService struct {
	repo        domain.FreezeRepository
	maxAttempts int
	logger      *zap.Logger
}

func NewFreezeService(repo domain.FreezeRepository, maxAttempts int, logger *zap.Logger) *FreezeService {
	if maxAttempts < 1 {
		maxAttempts = DefaultFreezeAttempts
	}
	return &FreezeService{
		repo:        repo,
		maxAttempts: maxAttempts,
		logger:      orNop(logger),
	}
}

func (s *FreezeService) Balance(ctx context.Context, userID string) (*domain.FreezeBalance, error) {
	b, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("freeze service: read balance: %w", err)
	}
	return b, nil
}

// Purchase returns false without touching the balance when the user cannot
// afford cost.
func (s *FreezeService) Purchase(ctx context.Context, userID string, days, cost int) (bool, error) {
	ok, err := s.transact(ctx, "purchase", userID, func(b *domain.FreezeBalance) (bool, error) {
		return b.Purchase(days, cost)
	})
	if ok {
		s.logger.Info("freeze days purchased",
			zap.String("user_id", userID),
			zap.Int("days", days),
			zap.Int("cost", cost),
		)
	}
	return ok, err
}

func (s *FreezeService) ConsumeOneIfAvailable(ctx context.Context, userID string) (bool, error) {
	ok, err := s.transact(ctx, "consume", userID, func(b *domain.FreezeBalance) (bool, error) {
		return b.ConsumeFreezeDay(), nil
	})
	if ok {
		freezeDaysConsumedTotal.WithLabelValues("manual").Inc()
	}
	return ok, err
}

func (s *FreezeService) AddDiamonds(ctx context.Context, userID string, amount int) error {
	_, err := s.transact(ctx, "add_diamonds", userID, func(b *domain.FreezeBalance) (bool, error) {
		if err := b.AddDiamonds(amount); err != nil {
			return false, err
		}
		return true, nil
	})
	return err
}

func (s *FreezeService) transact(ctx context.Context, op, userID string, mutate func(b *domain.FreezeBalance) (bool, error)) (bool, error) {
	if userID == "" {
		return false, domain.ErrHabitInvalidUserID
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		b, err := s.repo.Get(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("freeze service: %s: read balance: %w", op, err)
		}

		applied, err := mutate(b)
		if err != nil || !applied {
			return false, err
		}

		err = s.repo.CompareAndSwap(ctx, b)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrFreezeConflict) {
			return false, fmt.Errorf("freeze service: %s: write balance: %w", op, err)
		}

		freezeCASRetriesTotal.WithLabelValues(op).Inc()
		s.logger.Debug("freeze balance conflict, retrying",
			zap.String("user_id", userID),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
		)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
	}

	return false, fmt.Errorf("freeze service: %s for %s: %w", op, userID, domain.ErrFreezeContention)
}
