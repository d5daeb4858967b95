package domain

import (
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

var (
	ErrInvalidCompletion  = errors.New("invalid completion record")
	ErrCompletionExists   = errors.New("habit already completed on this date")
	ErrCompletionNotFound = errors.New("completion record not found")
)

// CompletionRecord marks a habit done on one calendar date. (HabitID, Date)
// is unique.
type CompletionRecord struct {
	ID      string `json:"id" db:"id"`
	HabitID string `json:"habit_id" db:"habit_id"`
	UserID  string `json:"user_id" db:"user_id"`

	Date        civil.Date `json:"date" db:"-"`
	CompletedAt time.Time  `json:"completed_at" db:"completed_at"`
}

func NewCompletionRecord(habitID, userID string, date civil.Date, completedAt time.Time) *CompletionRecord {
	return &CompletionRecord{
		ID:          uuid.NewString(),
		HabitID:     habitID,
		UserID:      userID,
		Date:        date,
		CompletedAt: completedAt.UTC(),
	}
}

func (c *CompletionRecord) Validate() error {
	if strings.TrimSpace(c.HabitID) == "" {
		return errors.Join(ErrInvalidCompletion, errors.New("habit_id is required"))
	}
	if strings.TrimSpace(c.UserID) == "" {
		return errors.Join(ErrInvalidCompletion, errors.New("user_id is required"))
	}
	if !c.Date.IsValid() {
		return errors.Join(ErrInvalidCompletion, errors.New("date is required"))
	}
	if c.CompletedAt.IsZero() {
		return errors.Join(ErrInvalidCompletion, errors.New("completed_at is required"))
	}
	return nil
}
