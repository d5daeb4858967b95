package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStreaks struct {
	mu       sync.Mutex
	habits   []string
	users    []string
	days     []civil.Date
	failUser string
	seen     chan string
}

func (f *fakeStreaks) Recompute(ctx context.Context, habitID string, today civil.Date) (*domain.Habit, error) {
	f.mu.Lock()
	f.habits = append(f.habits, habitID)
	f.days = append(f.days, today)
	f.mu.Unlock()
	if f.seen != nil {
		f.seen <- habitID
	}
	return &domain.Habit{ID: habitID, UserID: "owner-of-" + habitID}, nil
}

func (f *fakeStreaks) RecomputeUser(ctx context.Context, userID string, today civil.Date) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	if userID == f.failUser {
		return 0, errors.New("partial failure")
	}
	return 1, nil
}

type fakeStatus struct {
	mu          sync.Mutex
	invalidated []string
	refreshed   []string
}

func (f *fakeStatus) Status(ctx context.Context, userID string, forceRefresh bool) (*domain.OverdueReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, userID)
	return &domain.OverdueReport{UserID: userID}, nil
}

func (f *fakeStatus) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
}

type fakeUsers []string

func (f fakeUsers) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	return f, nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC) }
}

func TestStreakWorker_ProcessesQueuedJobs(t *testing.T) {
	streaks := &fakeStreaks{seen: make(chan string, 1)}
	status := &fakeStatus{}
	w := NewStreakWorker(streaks, status, fakeUsers{}, Options{
		SweepInterval: -1,
		Location:      time.FixedZone("UTC+2", 2*60*60),
		Clock:         fixedClock(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.True(t, w.Enqueue("h1", "u1"))
	select {
	case id := <-streaks.seen:
		assert.Equal(t, "h1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	cancel()
	<-w.Done()

	assert.Equal(t, []civil.Date{{Year: 2024, Month: 6, Day: 2}}, streaks.days, "today follows the configured zone")
	assert.Equal(t, []string{"u1"}, status.invalidated)
	assert.Equal(t, []string{"u1"}, status.refreshed)
}

func TestStreakWorker_EnqueueDropsWhenFull(t *testing.T) {
	w := NewStreakWorker(&fakeStreaks{}, nil, fakeUsers{}, Options{QueueSize: 2, SweepInterval: -1})

	assert.True(t, w.Enqueue("h1", "u1"))
	assert.True(t, w.Enqueue("h2", "u1"))
	assert.False(t, w.Enqueue("h3", "u1"))
	assert.Equal(t, int64(1), w.Dropped())
}

func TestStreakWorker_Sweep(t *testing.T) {
	streaks := &fakeStreaks{failUser: "u2"}
	status := &fakeStatus{}
	w := NewStreakWorker(streaks, status, fakeUsers{"u1", "u2", "u3"}, Options{
		Concurrency: 2,
		Location:    time.UTC,
		Clock:       fixedClock(),
	})

	n, err := w.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, streaks.users)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, status.refreshed, "severity is refreshed even after a partial failure")
}

func TestStreakWorker_PeriodicSweep(t *testing.T) {
	streaks := &fakeStreaks{}
	w := NewStreakWorker(streaks, &fakeStatus{}, fakeUsers{"u1"}, Options{
		SweepInterval: 10 * time.Millisecond,
		Clock:         fixedClock(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	assert.Eventually(t, func() bool {
		streaks.mu.Lock()
		defer streaks.mu.Unlock()
		return len(streaks.users) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-w.Done()
}
