package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var (
	_ domain.HabitRepository = (*CachedHabitRepository)(nil)
	_ domain.StreakStore     = (*CachedHabitRepository)(nil)
)

const DefaultHabitCacheTTL = 30 * time.Minute

// CachedHabitRepository keeps each user's active habit list in Redis. Every
// write, including streak commits, drops the user's entry; reads fall back to
// the wrapped repository on any cache error.
type CachedHabitRepository struct {
	next    domain.HabitRepository
	streaks domain.StreakStore
	cache   *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

func NewCachedHabitRepository(next domain.HabitRepository, streaks domain.StreakStore, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedHabitRepository {
	if ttl <= 0 {
		ttl = DefaultHabitCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedHabitRepository{
		next:    next,
		streaks: streaks,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.Named("habit_cache"),
	}
}

func (r *CachedHabitRepository) cacheKey(userID string) string {
	return fmt.Sprintf("habits:%s", userID)
}

func (r *CachedHabitRepository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Del(ctx, r.cacheKey(userID)).Err(); err != nil {
		r.logger.Warn("failed to invalidate", zap.String("user_id", userID), zap.Error(err))
	}
}

func (r *CachedHabitRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Habit, error) {
	key := r.cacheKey(userID)

	val, err := r.cache.Get(ctx, key).Result()
	if err == nil {
		var habits []*domain.Habit
		if err := json.Unmarshal([]byte(val), &habits); err == nil {
			return habits, nil
		}

		r.logger.Warn("corrupted entry, cleaning up key", zap.String("user_id", userID))
		r.cache.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("redis read error", zap.Error(err))
	}

	habits, err := r.next.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(habits); err == nil {
		if setErr := r.cache.Set(ctx, key, data, r.ttl).Err(); setErr != nil {
			r.logger.Warn("redis set error", zap.Error(setErr))
		}
	}

	return habits, nil
}

func (r *CachedHabitRepository) GetByID(ctx context.Context, id string) (*domain.Habit, error) {
	return r.next.GetByID(ctx, id)
}

func (r *CachedHabitRepository) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	return r.next.ListActiveUserIDs(ctx)
}

func (r *CachedHabitRepository) Create(ctx context.Context, habit *domain.Habit) error {
	if err := r.next.Create(ctx, habit); err != nil {
		return err
	}
	r.invalidate(ctx, habit.UserID)
	return nil
}

func (r *CachedHabitRepository) Update(ctx context.Context, habit *domain.Habit) error {
	if err := r.next.Update(ctx, habit); err != nil {
		return err
	}
	r.invalidate(ctx, habit.UserID)
	return nil
}

func (r *CachedHabitRepository) Delete(ctx context.Context, id string) error {
	habit, err := r.next.GetByID(ctx, id)
	if err == nil && habit != nil {
		defer r.invalidate(ctx, habit.UserID)
	}

	return r.next.Delete(ctx, id)
}

func (r *CachedHabitRepository) CommitStreak(ctx context.Context, userID string, fn domain.StreakMutation) error {
	var wrote bool
	err := r.streaks.CommitStreak(ctx, userID, func(balance *domain.FreezeBalance) (*domain.Habit, error) {
		h, err := fn(balance)
		wrote = h != nil && err == nil
		return h, err
	})
	if err == nil && wrote {
		r.invalidate(ctx, userID)
	}
	return err
}
