package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

func TestFreezeService_Purchase(t *testing.T) {
	t.Run("Insufficient diamonds leave the balance untouched", func(t *testing.T) {
		f := newFixture()
		svc := services.NewFreezeService(f.store.Freezes(), 5, nil)
		require.NoError(t, svc.AddDiamonds(f.ctx, "u1", 50))

		ok, err := svc.Purchase(f.ctx, "u1", 1, 100)

		require.NoError(t, err)
		assert.False(t, ok)
		b := f.balance(t, "u1")
		assert.Equal(t, 50, b.Diamonds)
		assert.Equal(t, 0, b.FreezeDays)
	})

	t.Run("Success: Diamonds become freeze days", func(t *testing.T) {
		f := newFixture()
		svc := services.NewFreezeService(f.store.Freezes(), 5, nil)
		require.NoError(t, svc.AddDiamonds(f.ctx, "u1", 250))

		ok, err := svc.Purchase(f.ctx, "u1", 2, 200)

		require.NoError(t, err)
		assert.True(t, ok)
		b := f.balance(t, "u1")
		assert.Equal(t, 50, b.Diamonds)
		assert.Equal(t, 2, b.FreezeDays)
	})

	t.Run("Error: Invalid amounts", func(t *testing.T) {
		f := newFixture()
		svc := services.NewFreezeService(f.store.Freezes(), 5, nil)

		_, err := svc.Purchase(f.ctx, "u1", 0, 10)
		assert.ErrorIs(t, err, domain.ErrInvalidFreezeAmount)

		err = svc.AddDiamonds(f.ctx, "u1", -5)
		assert.ErrorIs(t, err, domain.ErrInvalidFreezeAmount)
	})
}

func TestFreezeService_ConsumeOneIfAvailable(t *testing.T) {
	f := newFixture()
	svc := services.NewFreezeService(f.store.Freezes(), 5, nil)

	ok, err := svc.ConsumeOneIfAvailable(f.ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	f.freezeDays(t, "u1", 1)

	ok, err = svc.ConsumeOneIfAvailable(f.ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, f.balance(t, "u1").FreezeDays)
}

func TestFreezeService_ConcurrentUpdatesAreNotLost(t *testing.T) {
	f := newFixture()
	svc := services.NewFreezeService(f.store.Freezes(), 1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.AddDiamonds(f.ctx, "u1", 2))
		}()
	}
	wg.Wait()

	b := f.balance(t, "u1")
	assert.Equal(t, 100, b.Diamonds)
	assert.Equal(t, 50, b.Version)
}

type MockFreezeRepo struct {
	mock.Mock
}

func (m *MockFreezeRepo) Get(ctx context.Context, userID string) (*domain.FreezeBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FreezeBalance).Clone(), args.Error(1)
}

func (m *MockFreezeRepo) CompareAndSwap(ctx context.Context, b *domain.FreezeBalance) error {
	return m.Called(ctx, b).Error(0)
}

func TestFreezeService_GivesUpUnderContention(t *testing.T) {
	repo := new(MockFreezeRepo)
	repo.On("Get", mock.Anything, "u1").Return(&domain.FreezeBalance{UserID: "u1", FreezeDays: 3}, nil)
	repo.On("CompareAndSwap", mock.Anything, mock.Anything).Return(domain.ErrFreezeConflict)

	svc := services.NewFreezeService(repo, 4, nil)

	ok, err := svc.ConsumeOneIfAvailable(context.Background(), "u1")

	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrFreezeContention)
	repo.AssertNumberOfCalls(t, "CompareAndSwap", 4)
}

func TestFreezeService_RejectsEmptyUser(t *testing.T) {
	svc := services.NewFreezeService(new(MockFreezeRepo), 1, nil)

	_, err := svc.Purchase(context.Background(), "", 1, 1)

	assert.ErrorIs(t, err, domain.ErrHabitInvalidUserID)
}
