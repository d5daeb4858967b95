package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var (
	ErrInvalidRecurrence = errors.New("invalid recurrence")
)

type RecurrenceKind string

const (
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
	RecurrenceYearly  RecurrenceKind = "yearly"
)

// daysInMonth uses a leap year so that Feb 29 is accepted as a yearly rule.
var daysInMonth = [...]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Recurrence decides on which calendar dates a habit is scheduled.
// Only the fields relevant to Kind are meaningful.
type Recurrence struct {
	Kind       RecurrenceKind `json:"kind"`
	Weekday    time.Weekday   `json:"weekday,omitempty"`
	DayOfMonth int            `json:"day_of_month,omitempty"`
	Month      time.Month     `json:"month,omitempty"`
}

func Daily() Recurrence {
	return Recurrence{Kind: RecurrenceDaily}
}

func Weekly(day time.Weekday) Recurrence {
	return Recurrence{Kind: RecurrenceWeekly, Weekday: day}
}

func Monthly(dayOfMonth int) Recurrence {
	return Recurrence{Kind: RecurrenceMonthly, DayOfMonth: dayOfMonth}
}

func Yearly(month time.Month, day int) Recurrence {
	return Recurrence{Kind: RecurrenceYearly, Month: month, DayOfMonth: day}
}

func ParseRecurrenceKind(s string) (RecurrenceKind, error) {
	switch k := RecurrenceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRecurrence, s)
	}
}

// Validate rejects parameters IsScheduled cannot honour. It is called at the
// boundary (construction, reschedule, document decode).
func (r Recurrence) Validate() error {
	switch r.Kind {
	case RecurrenceDaily:
		return nil
	case RecurrenceWeekly:
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday must be 0-6, got %d", ErrInvalidRecurrence, r.Weekday)
		}
		return nil
	case RecurrenceMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month must be 1-31, got %d", ErrInvalidRecurrence, r.DayOfMonth)
		}
		return nil
	case RecurrenceYearly:
		if r.Month < time.January || r.Month > time.December {
			return fmt.Errorf("%w: month must be 1-12, got %d", ErrInvalidRecurrence, r.Month)
		}
		if r.DayOfMonth < 1 || r.DayOfMonth > daysInMonth[r.Month] {
			return fmt.Errorf("%w: %s has no day %d", ErrInvalidRecurrence, r.Month, r.DayOfMonth)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecurrence, r.Kind)
	}
}

// IsScheduled assumes a validated recurrence.
//
// Monthly and yearly rules whose day does not exist in the evaluated month
// (e.g. the 31st in April, Feb 29 in a common year) fire on that month's last
// day instead of being skipped.
func (r Recurrence) IsScheduled(d civil.Date) bool {
	switch r.Kind {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		return Weekday(d) == r.Weekday
	case RecurrenceMonthly:
		return d.Day == clampDay(d.Year, d.Month, r.DayOfMonth)
	case RecurrenceYearly:
		return d.Month == r.Month && d.Day == clampDay(d.Year, d.Month, r.DayOfMonth)
	default:
		return false
	}
}

func (r Recurrence) String() string {
	switch r.Kind {
	case RecurrenceWeekly:
		return fmt.Sprintf("weekly(%s)", r.Weekday)
	case RecurrenceMonthly:
		return fmt.Sprintf("monthly(%d)", r.DayOfMonth)
	case RecurrenceYearly:
		return fmt.Sprintf("yearly(%s %d)", r.Month, r.DayOfMonth)
	default:
		return string(r.Kind)
	}
}

func clampDay(year int, month time.Month, day int) int {
	if last := LastDayOfMonth(year, month); day > last {
		return last
	}
	return day
}

func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
