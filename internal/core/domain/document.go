package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-viper/mapstructure/v2"
)

var (
	ErrInvalidDocument = errors.New("invalid habit document")
)

// habitDocument mirrors the string-keyed habit document kept by the remote
// store. Date fields stay untyped because the store mixes ISO strings and
// timestamps.
type habitDocument struct {
	ID              string `mapstructure:"id"`
	UserID          string `mapstructure:"userId"`
	Title           string `mapstructure:"title"`
	Frequency       string `mapstructure:"frequency"`
	DayOfWeek       any    `mapstructure:"dayOfWeek"`
	DayOfMonth      int    `mapstructure:"dayOfMonth"`
	MonthOfYear     int    `mapstructure:"monthOfYear"`
	ReminderHour    int    `mapstructure:"reminderHour"`
	ReminderMinute  int    `mapstructure:"reminderMinute"`
	ReminderEnabled bool   `mapstructure:"reminderEnabled"`

	LastCompletedDate           any   `mapstructure:"lastCompletedDate"`
	Streak                      int   `mapstructure:"streak"`
	HighestStreakAchieved       int   `mapstructure:"highestStreakAchieved"`
	CurrentGapStartDate         any   `mapstructure:"currentGapStartDate"`
	FreezeDaysUsedForCurrentGap int   `mapstructure:"freezeDaysUsedForCurrentGap"`
	FreezeAppliedDates          []any `mapstructure:"freezeAppliedDates"`
	StreakBrokenOn              any   `mapstructure:"streakBrokenOn"`

	Version   int        `mapstructure:"version"`
	IsDeleted bool       `mapstructure:"isDeleted"`
	DeletedAt *time.Time `mapstructure:"deletedAt"`
	CreatedAt time.Time  `mapstructure:"createdAt"`
	UpdatedAt time.Time  `mapstructure:"updatedAt"`
}

type freezeDocument struct {
	Diamonds   int `mapstructure:"diamonds"`
	FreezeDays int `mapstructure:"freezeDays"`
	Version    int `mapstructure:"version"`
}

// decodeDocument decodes weakly and keeps whatever fields decoded cleanly.
// Malformed fields are left at their zero value.
func decodeDocument(doc map[string]any, out any) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return
	}
	_ = dec.Decode(doc)
}

// DecodeHabitDocument converts a store document into a Habit. Unknown or
// malformed scalar fields fall back to defaults; an invalid recurrence is
// rejected with ErrInvalidRecurrence.
func DecodeHabitDocument(doc map[string]any) (*Habit, error) {
	var d habitDocument
	decodeDocument(doc, &d)

	if strings.TrimSpace(d.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}

	rec, err := decodeRecurrence(d)
	if err != nil {
		return nil, fmt.Errorf("habit %s: %w", d.ID, err)
	}

	h := &Habit{
		ID:                          d.ID,
		UserID:                      d.UserID,
		Title:                       strings.TrimSpace(d.Title),
		Recurrence:                  rec,
		ReminderEnabled:             d.ReminderEnabled,
		LastCompletedDate:           parseDateValue(d.LastCompletedDate),
		Streak:                      nonNegative(d.Streak),
		CurrentGapStartDate:         parseDateValue(d.CurrentGapStartDate),
		FreezeDaysUsedForCurrentGap: nonNegative(d.FreezeDaysUsedForCurrentGap),
		StreakBrokenOn:              parseDateValue(d.StreakBrokenOn),
		Version:                     d.Version,
		CreatedAt:                   d.CreatedAt,
		UpdatedAt:                   d.UpdatedAt,
		DeletedAt:                   d.DeletedAt,
	}

	if d.ReminderHour >= 0 && d.ReminderHour <= 23 && d.ReminderMinute >= 0 && d.ReminderMinute <= 59 {
		h.ReminderHour, h.ReminderMinute = d.ReminderHour, d.ReminderMinute
	} else {
		h.ReminderEnabled = false
	}

	h.HighestStreakAchieved = max(nonNegative(d.HighestStreakAchieved), h.Streak)

	for _, raw := range d.FreezeAppliedDates {
		if date := parseDateValue(raw); date != nil && !h.HasFreezeApplied(*date) {
			h.FreezeAppliedDates = append(h.FreezeAppliedDates, *date)
		}
	}

	if d.IsDeleted && h.DeletedAt == nil {
		deletedAt := d.UpdatedAt
		h.DeletedAt = &deletedAt
	}

	return h, nil
}

// DecodeFreezeDocument never fails; a missing or broken document is an empty
// balance.
func DecodeFreezeDocument(userID string, doc map[string]any) *FreezeBalance {
	var d freezeDocument
	decodeDocument(doc, &d)

	return &FreezeBalance{
		UserID:     userID,
		Diamonds:   nonNegative(d.Diamonds),
		FreezeDays: nonNegative(d.FreezeDays),
		Version:    d.Version,
	}
}

func decodeRecurrence(d habitDocument) (Recurrence, error) {
	return BuildRecurrence(d.Frequency, d.DayOfWeek, d.DayOfMonth, d.MonthOfYear)
}

// BuildRecurrence assembles a validated recurrence from loosely typed
// fields. An empty frequency means daily. dayOfWeek may be an ISO-8601
// number or an English day name.
func BuildRecurrence(frequency string, dayOfWeek any, dayOfMonth, month int) (Recurrence, error) {
	if strings.TrimSpace(frequency) == "" {
		return Daily(), nil
	}

	kind, err := ParseRecurrenceKind(frequency)
	if err != nil {
		return Recurrence{}, err
	}

	rec := Recurrence{Kind: kind}
	switch kind {
	case RecurrenceWeekly:
		day, ok := parseWeekday(dayOfWeek)
		if !ok {
			return Recurrence{}, fmt.Errorf("%w: bad dayOfWeek %v", ErrInvalidRecurrence, dayOfWeek)
		}
		rec.Weekday = day
	case RecurrenceMonthly:
		rec.DayOfMonth = dayOfMonth
	case RecurrenceYearly:
		rec.Month = time.Month(month)
		rec.DayOfMonth = dayOfMonth
	}

	if err := rec.Validate(); err != nil {
		return Recurrence{}, err
	}
	return rec, nil
}

// parseWeekday accepts ISO-8601 numbers (1 = Monday ... 7 = Sunday) and
// English day names.
func parseWeekday(v any) (time.Weekday, bool) {
	switch val := v.(type) {
	case string:
		name := strings.ToLower(strings.TrimSpace(val))
		for day := time.Sunday; day <= time.Saturday; day++ {
			if strings.ToLower(day.String()) == name {
				return day, true
			}
		}
		n, err := strconv.Atoi(name)
		if err != nil {
			return 0, false
		}
		return isoWeekday(n)
	case int:
		return isoWeekday(val)
	case int64:
		return isoWeekday(int(val))
	case float64:
		return isoWeekday(int(val))
	default:
		return 0, false
	}
}

func isoWeekday(n int) (time.Weekday, bool) {
	if n < 1 || n > 7 {
		return 0, false
	}
	return time.Weekday(n % 7), true
}

func parseDateValue(v any) *civil.Date {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if len(s) > len(DateLayout) {
			s = s[:len(DateLayout)]
		}
		d, err := civil.ParseDate(s)
		if err != nil {
			return nil
		}
		return &d
	case time.Time:
		if val.IsZero() {
			return nil
		}
		d := civil.DateOf(val)
		return &d
	case civil.Date:
		if !val.IsValid() {
			return nil
		}
		return &val
	default:
		return nil
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
