package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

type storeUnderTest struct {
	habits      domain.HabitRepository
	completions domain.CompletionRepository
	freezes     domain.FreezeRepository
	streaks     domain.StreakStore
}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func newStoredHabit(t *testing.T, s storeUnderTest, userID string) *domain.Habit {
	t.Helper()
	h, err := domain.NewHabit(userID, "Contract habit", domain.Monthly(31), "07:15")
	require.NoError(t, err)
	require.NoError(t, s.habits.Create(context.Background(), h))
	return h
}

// runStoreContract exercises behaviour every storage backend must share.
func runStoreContract(t *testing.T, s storeUnderTest, userID string) {
	ctx := context.Background()

	t.Run("Habit round trip", func(t *testing.T) {
		h := newStoredHabit(t, s, userID)

		fetched, err := s.habits.GetByID(ctx, h.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, fetched.Version)
		assert.Equal(t, domain.Monthly(31), fetched.Recurrence)
		assert.Equal(t, 7, fetched.ReminderHour)
		assert.Equal(t, 15, fetched.ReminderMinute)
		assert.True(t, fetched.ReminderEnabled)
		assert.Nil(t, fetched.LastCompletedDate)
		assert.Empty(t, fetched.FreezeAppliedDates)

		ids, err := s.habits.ListActiveUserIDs(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, userID)
	})

	t.Run("Optimistic locking on update", func(t *testing.T) {
		h := newStoredHabit(t, s, userID)

		a, err := s.habits.GetByID(ctx, h.ID)
		require.NoError(t, err)
		b, err := s.habits.GetByID(ctx, h.ID)
		require.NoError(t, err)

		b.Title = "B wins"
		require.NoError(t, s.habits.Update(ctx, b))
		assert.Equal(t, 2, b.Version)

		a.Title = "A loses"
		assert.ErrorIs(t, s.habits.Update(ctx, a), domain.ErrHabitConflict)

		ghost := &domain.Habit{ID: "does-not-exist", Version: 1}
		assert.ErrorIs(t, s.habits.Update(ctx, ghost), domain.ErrHabitNotFound)
	})

	t.Run("Soft delete hides the habit", func(t *testing.T) {
		h := newStoredHabit(t, s, userID)

		require.NoError(t, s.habits.Delete(ctx, h.ID))

		_, err := s.habits.GetByID(ctx, h.ID)
		assert.ErrorIs(t, err, domain.ErrHabitNotFound)
		assert.ErrorIs(t, s.habits.Delete(ctx, h.ID), domain.ErrHabitNotFound)

		list, err := s.habits.ListByUserID(ctx, userID)
		require.NoError(t, err)
		for _, other := range list {
			assert.NotEqual(t, h.ID, other.ID)
		}
	})

	t.Run("Completions are unique per date", func(t *testing.T) {
		h := newStoredHabit(t, s, userID)
		first := domain.NewCompletionRecord(h.ID, userID, day(2024, 2, 29), time.Now())

		require.NoError(t, s.completions.Create(ctx, first))
		dup := domain.NewCompletionRecord(h.ID, userID, day(2024, 2, 29), time.Now())
		assert.ErrorIs(t, s.completions.Create(ctx, dup), domain.ErrCompletionExists)

		require.NoError(t, s.completions.Create(ctx, domain.NewCompletionRecord(h.ID, userID, day(2024, 2, 1), time.Now())))

		records, err := s.completions.ListByHabitID(ctx, h.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, day(2024, 2, 1), records[0].Date)
		assert.Equal(t, day(2024, 2, 29), records[1].Date)

		require.NoError(t, s.completions.Delete(ctx, h.ID, day(2024, 2, 1)))
		assert.ErrorIs(t, s.completions.Delete(ctx, h.ID, day(2024, 2, 1)), domain.ErrCompletionNotFound)
	})

	t.Run("Freeze balance compare-and-swap", func(t *testing.T) {
		owner := userID + "-wallet"

		b, err := s.freezes.Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 0, b.Diamonds)

		stale := b.Clone()
		b.Diamonds = 40
		require.NoError(t, s.freezes.CompareAndSwap(ctx, b))

		stale.Diamonds = 999
		assert.ErrorIs(t, s.freezes.CompareAndSwap(ctx, stale), domain.ErrFreezeConflict)

		fresh, err := s.freezes.Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 40, fresh.Diamonds)
		assert.Equal(t, b.Version, fresh.Version)
	})

	t.Run("CommitStreak writes habit and balance together", func(t *testing.T) {
		owner := userID + "-streak"
		h := newStoredHabit(t, s, owner)

		b, err := s.freezes.Get(ctx, owner)
		require.NoError(t, err)
		b.FreezeDays = 2
		require.NoError(t, s.freezes.CompareAndSwap(ctx, b))

		err = s.streaks.CommitStreak(ctx, owner, func(balance *domain.FreezeBalance) (*domain.Habit, error) {
			require.True(t, balance.ConsumeFreezeDay())
			next := h.Clone()
			last := day(2024, 3, 1)
			gap := day(2024, 3, 2)
			next.LastCompletedDate = &last
			next.Streak = 4
			next.HighestStreakAchieved = 4
			next.CurrentGapStartDate = &gap
			next.FreezeDaysUsedForCurrentGap = 1
			next.FreezeAppliedDates = []civil.Date{gap}
			return next, nil
		})
		require.NoError(t, err)

		stored, err := s.habits.GetByID(ctx, h.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, stored.Streak)
		assert.Equal(t, day(2024, 3, 1), *stored.LastCompletedDate)
		assert.Equal(t, []civil.Date{day(2024, 3, 2)}, stored.FreezeAppliedDates)
		assert.Equal(t, 2, stored.Version)
		assert.Equal(t, "Contract habit", stored.Title)

		after, err := s.freezes.Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 1, after.FreezeDays)

		t.Run("Stale habit version aborts both writes", func(t *testing.T) {
			err := s.streaks.CommitStreak(ctx, owner, func(balance *domain.FreezeBalance) (*domain.Habit, error) {
				balance.ConsumeFreezeDay()
				return h.Clone(), nil
			})
			assert.ErrorIs(t, err, domain.ErrHabitConflict)

			unchanged, err := s.freezes.Get(ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, 1, unchanged.FreezeDays)
		})

		t.Run("Nil habit writes nothing", func(t *testing.T) {
			err := s.streaks.CommitStreak(ctx, owner, func(balance *domain.FreezeBalance) (*domain.Habit, error) {
				balance.ConsumeFreezeDay()
				return nil, nil
			})
			require.NoError(t, err)

			unchanged, err := s.freezes.Get(ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, 1, unchanged.FreezeDays)
		})
	})

	t.Run("Concurrent commits never overspend", func(t *testing.T) {
		owner := userID + "-race"
		habits := []*domain.Habit{newStoredHabit(t, s, owner), newStoredHabit(t, s, owner), newStoredHabit(t, s, owner)}

		b, err := s.freezes.Get(ctx, owner)
		require.NoError(t, err)
		b.FreezeDays = 2
		require.NoError(t, s.freezes.CompareAndSwap(ctx, b))

		var wg sync.WaitGroup
		var mu sync.Mutex
		consumed := 0
		for _, h := range habits {
			wg.Add(1)
			go func(h *domain.Habit) {
				defer wg.Done()
				err := s.streaks.CommitStreak(ctx, owner, func(balance *domain.FreezeBalance) (*domain.Habit, error) {
					next := h.Clone()
					if balance.ConsumeFreezeDay() {
						next.FreezeDaysUsedForCurrentGap = 1
					}
					return next, nil
				})
				if assert.NoError(t, err) {
					stored, _ := s.habits.GetByID(ctx, h.ID)
					mu.Lock()
					consumed += stored.FreezeDaysUsedForCurrentGap
					mu.Unlock()
				}
			}(h)
		}
		wg.Wait()

		after, err := s.freezes.Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 0, after.FreezeDays)
		assert.Equal(t, 2, consumed)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore()
	runStoreContract(t, storeUnderTest{
		habits:      store.Habits(),
		completions: store.Completions(),
		freezes:     store.Freezes(),
		streaks:     store,
	}, "memory-user")
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	h, err := domain.NewHabit("u1", "Copy", domain.Daily(), "")
	require.NoError(t, err)
	require.NoError(t, store.Habits().Create(ctx, h))

	fetched, err := store.Habits().GetByID(ctx, h.ID)
	require.NoError(t, err)
	fetched.Streak = 99

	again, err := store.Habits().GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Streak)
}
