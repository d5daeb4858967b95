package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

func setupTestRedis(t *testing.T) *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port, Password: os.Getenv("REDIS_PASSWORD"), DB: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("Skipping Redis integration tests: %v", err)
	}
	return rdb
}

func TestCachedHabitRepository_Integration(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	ctx := context.Background()
	store := NewMemoryStore()
	repo := NewCachedHabitRepository(store.Habits(), store, rdb, time.Minute, nil)

	userID := "cache-user-" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, repo.cacheKey(userID))

	h, err := domain.NewHabit(userID, "Cached", domain.Daily(), "06:30")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, h))

	t.Run("Miss populates the cache", func(t *testing.T) {
		list, err := repo.ListByUserID(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 1)

		exists, err := rdb.Exists(ctx, repo.cacheKey(userID)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("Streak commit invalidates", func(t *testing.T) {
		err := repo.CommitStreak(ctx, userID, func(balance *domain.FreezeBalance) (*domain.Habit, error) {
			next := h.Clone()
			next.Streak = 3
			next.HighestStreakAchieved = 3
			return next, nil
		})
		require.NoError(t, err)

		exists, err := rdb.Exists(ctx, repo.cacheKey(userID)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)

		list, err := repo.ListByUserID(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 3, list[0].Streak)
	})

	t.Run("Corrupted entry falls back to the store", func(t *testing.T) {
		require.NoError(t, rdb.Set(ctx, repo.cacheKey(userID), "{not json", time.Minute).Err())

		list, err := repo.ListByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Delete invalidates", func(t *testing.T) {
		_, err := repo.ListByUserID(ctx, userID)
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, h.ID))

		list, err := repo.ListByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
