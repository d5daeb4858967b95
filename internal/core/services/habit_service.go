package services

import (
	"context"
	"fmt"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

type HabitService struct {
	repo   domain.HabitRepository
	status StatusInvalidator
}

func NewHabitService(repo domain.HabitRepository, status StatusInvalidator) *HabitService {
	return &HabitService{
		repo:   repo,
		status: status,
	}
}

type CreateHabitInput struct {
	UserID     string
	Title      string
	Recurrence domain.Recurrence
	Reminder   string
}

type UpdateHabitInput struct {
	ID              string
	UserID          string
	Title           string
	Recurrence      *domain.Recurrence
	Reminder        string
	ReminderEnabled *bool
	Version         int
}

func (s *HabitService) Create(ctx context.Context, input CreateHabitInput) (*domain.Habit, error) {
	if input.Recurrence.Kind == "" {
		input.Recurrence = domain.Daily()
	}

	habit, err := domain.NewHabit(input.UserID, input.Title, input.Recurrence, input.Reminder)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, habit); err != nil {
		return nil, err
	}

	s.invalidate(habit.UserID)
	return habit, nil
}

func (s *HabitService) GetByID(ctx context.Context, id, userID string) (*domain.Habit, error) {
	habit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, domain.ErrHabitNotFound
	}
	return habit, nil
}

func (s *HabitService) ListByUserID(ctx context.Context, userID string) ([]*domain.Habit, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// Update changes title, schedule and reminder. Zero-valued input fields keep
// the stored value. A non-zero Version must match the stored one.
func (s *HabitService) Update(ctx context.Context, input UpdateHabitInput) (*domain.Habit, error) {
	habit, err := s.GetByID(ctx, input.ID, input.UserID)
	if err != nil {
		return nil, err
	}

	if input.Version > 0 && habit.Version != input.Version {
		return nil, fmt.Errorf("%w: client v%d vs server v%d", domain.ErrHabitConflict, input.Version, habit.Version)
	}

	rec := habit.Recurrence
	if input.Recurrence != nil {
		rec = *input.Recurrence
	}

	enabled := habit.ReminderEnabled
	if input.ReminderEnabled != nil {
		enabled = *input.ReminderEnabled
	} else if input.Reminder != "" {
		enabled = true
	}

	if err := habit.Reschedule(input.Title, rec, input.Reminder, enabled); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, habit); err != nil {
		return nil, err
	}

	s.invalidate(habit.UserID)
	return habit, nil
}

func (s *HabitService) Delete(ctx context.Context, id string, userID string) error {
	if _, err := s.GetByID(ctx, id, userID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(userID)
	return nil
}

func (s *HabitService) invalidate(userID string) {
	if s.status != nil {
		s.status.Invalidate(userID)
	}
}
