package domain

import (
	"context"

	"cloud.google.com/go/civil"
)

type HabitRepository interface {
	// Create persists a new habit definition in the storage.
	Create(ctx context.Context, habit *Habit) error

	// GetByID retrieves an active (non-deleted) habit by its identifier.
	GetByID(ctx context.Context, id string) (*Habit, error)

	// ListByUserID retrieves all active habits of a user.
	ListByUserID(ctx context.Context, userID string) ([]*Habit, error)

	// ListActiveUserIDs returns every user owning at least one active habit.
	// It drives the periodic sweep.
	ListActiveUserIDs(ctx context.Context) ([]string, error)

	// Update modifies title and schedule fields. Implementations must check
	// Version and return ErrHabitConflict on mismatch.
	Update(ctx context.Context, habit *Habit) error

	// Delete performs a soft delete.
	Delete(ctx context.Context, id string) error
}

type CompletionRepository interface {
	// Create returns ErrCompletionExists when (HabitID, Date) is taken.
	Create(ctx context.Context, record *CompletionRecord) error

	// Delete removes the completion of a habit on a date.
	Delete(ctx context.Context, habitID string, date civil.Date) error

	ListByHabitID(ctx context.Context, habitID string) ([]*CompletionRecord, error)

	ListByUserID(ctx context.Context, userID string) ([]*CompletionRecord, error)
}

type FreezeRepository interface {
	// Get returns the balance of a user, creating an empty one on first read.
	Get(ctx context.Context, userID string) (*FreezeBalance, error)

	// CompareAndSwap stores b if the stored version still equals b.Version,
	// then bumps b.Version. Otherwise it returns ErrFreezeConflict.
	CompareAndSwap(ctx context.Context, b *FreezeBalance) error
}

// StreakMutation computes the new streak state against a freshly read
// balance. Returning a nil habit means there is nothing to write.
type StreakMutation func(balance *FreezeBalance) (*Habit, error)

type StreakStore interface {
	// CommitStreak reads the user's balance, applies fn and writes the
	// habit streak fields together with the balance as one transaction.
	// Either record's version mismatch aborts the whole write with
	// ErrHabitConflict or ErrFreezeConflict.
	CommitStreak(ctx context.Context, userID string, fn StreakMutation) error
}
