package domain

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

var (
	ErrHabitNotFound      = errors.New("habit not found")
	ErrHabitConflict      = errors.New("habit version conflict")
	ErrHabitTitleEmpty    = errors.New("habit title cannot be empty")
	ErrHabitTitleTooLong  = errors.New("habit title is too long (max 100 chars)")
	ErrHabitInvalidUserID = errors.New("invalid user id")
	ErrHabitDeleted       = errors.New("cannot modify a deleted habit")
	ErrInvalidReminder    = errors.New("invalid reminder format (must be HH:MM 24h)")
	ErrUnauthorized       = errors.New("unauthorized access to resource")
)

var reminderRegex = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

const (
	MaxTitleLen = 100
	DateLayout  = "2006-01-02"
)

type Habit struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`

	Recurrence      Recurrence `json:"recurrence"`
	ReminderHour    int        `json:"reminder_hour"`
	ReminderMinute  int        `json:"reminder_minute"`
	ReminderEnabled bool       `json:"reminder_enabled"`

	LastCompletedDate           *civil.Date  `json:"last_completed_date,omitempty"`
	Streak                      int          `json:"streak"`
	HighestStreakAchieved       int          `json:"highest_streak_achieved"`
	CurrentGapStartDate         *civil.Date  `json:"current_gap_start_date,omitempty"`
	FreezeDaysUsedForCurrentGap int          `json:"freeze_days_used_for_current_gap"`
	FreezeAppliedDates          []civil.Date `json:"freeze_applied_dates,omitempty"`
	StreakBrokenOn              *civil.Date  `json:"streak_broken_on,omitempty"`

	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ParseReminder turns "HH:MM" into hour and minute.
func ParseReminder(reminder string) (int, int, error) {
	if !reminderRegex.MatchString(reminder) {
		return 0, 0, ErrInvalidReminder
	}
	hour, _ := strconv.Atoi(reminder[:2])
	minute, _ := strconv.Atoi(reminder[3:])
	return hour, minute, nil
}

func validateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", ErrHabitTitleEmpty
	}
	if len(trimmed) > MaxTitleLen {
		return "", ErrHabitTitleTooLong
	}
	return trimmed, nil
}

// NewHabit builds a validated habit. An empty reminder leaves the reminder
// disabled.
func NewHabit(userID, title string, rec Recurrence, reminder string) (*Habit, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrHabitInvalidUserID
	}

	cleanTitle, err := validateTitle(title)
	if err != nil {
		return nil, err
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	h := &Habit{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      cleanTitle,
		Recurrence: rec,
		Version:    1,
	}

	if reminder != "" {
		hour, minute, err := ParseReminder(reminder)
		if err != nil {
			return nil, err
		}
		h.ReminderHour, h.ReminderMinute, h.ReminderEnabled = hour, minute, true
	}

	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now

	return h, nil
}

// Reschedule changes the recurrence and reminder. Streak fields are left
// untouched; the next recompute walks the new schedule.
func (h *Habit) Reschedule(title string, rec Recurrence, reminder string, reminderEnabled bool) error {
	if h.IsDeleted() {
		return ErrHabitDeleted
	}

	if title != "" {
		cleanTitle, err := validateTitle(title)
		if err != nil {
			return err
		}
		h.Title = cleanTitle
	}

	if err := rec.Validate(); err != nil {
		return err
	}

	if reminder != "" {
		hour, minute, err := ParseReminder(reminder)
		if err != nil {
			return err
		}
		h.ReminderHour, h.ReminderMinute = hour, minute
	}

	h.Recurrence = rec
	h.ReminderEnabled = reminderEnabled
	h.UpdatedAt = time.Now().UTC()
	return nil
}

func (h *Habit) Delete() {
	if h.DeletedAt != nil {
		return
	}
	now := time.Now().UTC()
	h.DeletedAt = &now
	h.UpdatedAt = now
}

func (h *Habit) IsDeleted() bool {
	return h.DeletedAt != nil
}

func (h *Habit) IsScheduledOn(d civil.Date) bool {
	return h.Recurrence.IsScheduled(d)
}

// DueAt is the reminder instant of date d in loc.
func (h *Habit) DueAt(d civil.Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, h.ReminderHour, h.ReminderMinute, 0, 0, loc)
}

func (h *Habit) ReminderString() string {
	return fmt.Sprintf("%02d:%02d", h.ReminderHour, h.ReminderMinute)
}

func (h *Habit) HasFreezeApplied(d civil.Date) bool {
	return slices.Contains(h.FreezeAppliedDates, d)
}

// OpenGapFreezeDates returns the charged dates that belong to the current gap.
func (h *Habit) OpenGapFreezeDates() []civil.Date {
	if h.CurrentGapStartDate == nil {
		return nil
	}
	var out []civil.Date
	for _, d := range h.FreezeAppliedDates {
		if !d.Before(*h.CurrentGapStartDate) {
			out = append(out, d)
		}
	}
	return out
}

// Clone returns a deep copy so snapshots never share mutable state.
func (h *Habit) Clone() *Habit {
	c := *h
	c.LastCompletedDate = cloneDate(h.LastCompletedDate)
	c.CurrentGapStartDate = cloneDate(h.CurrentGapStartDate)
	c.StreakBrokenOn = cloneDate(h.StreakBrokenOn)
	c.FreezeAppliedDates = slices.Clone(h.FreezeAppliedDates)
	if h.DeletedAt != nil {
		t := *h.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func cloneDate(d *civil.Date) *civil.Date {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func datePtr(d civil.Date) *civil.Date {
	return &d
}

// DateIn is the calendar date of t in loc.
func DateIn(t time.Time, loc *time.Location) civil.Date {
	if loc != nil {
		t = t.In(loc)
	}
	return civil.DateOf(t)
}
