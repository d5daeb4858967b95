package domain_test

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

func TestDecodeHabitDocument(t *testing.T) {
	t.Run("Success: Decodes a weekly document", func(t *testing.T) {
		doc := map[string]any{
			"id":                          "h1",
			"userId":                      "u1",
			"title":                       " Run ",
			"frequency":                   "WEEKLY",
			"dayOfWeek":                   float64(1),
			"reminderHour":                "7",
			"reminderMinute":              30,
			"reminderEnabled":             true,
			"streak":                      "4",
			"highestStreakAchieved":       9,
			"lastCompletedDate":           "2024-01-08T09:10:00Z",
			"currentGapStartDate":         "2024-01-15",
			"freezeDaysUsedForCurrentGap": 1,
			"freezeAppliedDates":          []any{"2024-01-15", "garbage", "2024-01-15"},
			"unknownField":                map[string]any{"x": 1},
		}

		h, err := domain.DecodeHabitDocument(doc)

		require.NoError(t, err)
		assert.Equal(t, "Run", h.Title)
		assert.Equal(t, domain.Weekly(time.Monday), h.Recurrence)
		assert.Equal(t, 7, h.ReminderHour)
		assert.Equal(t, 30, h.ReminderMinute)
		assert.True(t, h.ReminderEnabled)
		assert.Equal(t, 4, h.Streak)
		assert.Equal(t, 9, h.HighestStreakAchieved)
		assert.Equal(t, date(2024, 1, 8), *h.LastCompletedDate)
		assert.Equal(t, date(2024, 1, 15), *h.CurrentGapStartDate)
		assert.Equal(t, []civil.Date{date(2024, 1, 15)}, h.FreezeAppliedDates)
	})

	t.Run("Malformed scalars fall back to defaults", func(t *testing.T) {
		doc := map[string]any{
			"id":                    "h2",
			"streak":                "many",
			"highestStreakAchieved": -3,
			"reminderHour":          31,
			"reminderEnabled":       true,
			"lastCompletedDate":     42,
		}

		h, err := domain.DecodeHabitDocument(doc)

		require.NoError(t, err)
		assert.Equal(t, domain.Daily(), h.Recurrence)
		assert.Equal(t, 0, h.Streak)
		assert.Equal(t, 0, h.HighestStreakAchieved)
		assert.False(t, h.ReminderEnabled, "out of range reminder disables the reminder")
		assert.Nil(t, h.LastCompletedDate)
	})

	t.Run("Soft delete flag is honoured", func(t *testing.T) {
		h, err := domain.DecodeHabitDocument(map[string]any{"id": "h3", "isDeleted": true})
		require.NoError(t, err)
		assert.True(t, h.IsDeleted())
	})

	t.Run("Error: Invalid recurrence is rejected", func(t *testing.T) {
		_, err := domain.DecodeHabitDocument(map[string]any{"id": "h4", "frequency": "MONTHLY", "dayOfMonth": 40})
		assert.ErrorIs(t, err, domain.ErrInvalidRecurrence)

		_, err = domain.DecodeHabitDocument(map[string]any{"id": "h5", "frequency": "WEEKLY", "dayOfWeek": 0})
		assert.ErrorIs(t, err, domain.ErrInvalidRecurrence)
	})

	t.Run("Error: Missing id", func(t *testing.T) {
		_, err := domain.DecodeHabitDocument(map[string]any{"title": "orphan"})
		assert.ErrorIs(t, err, domain.ErrInvalidDocument)
	})
}

func TestDecodeHabitDocument_WeekdayNames(t *testing.T) {
	h, err := domain.DecodeHabitDocument(map[string]any{"id": "h1", "frequency": "weekly", "dayOfWeek": "SUNDAY"})
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, h.Recurrence.Weekday)

	h, err = domain.DecodeHabitDocument(map[string]any{"id": "h1", "frequency": "weekly", "dayOfWeek": 7})
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, h.Recurrence.Weekday)
}

func TestDecodeFreezeDocument(t *testing.T) {
	b := domain.DecodeFreezeDocument("u1", map[string]any{"diamonds": "120", "freezeDays": -2, "version": 3})

	assert.Equal(t, "u1", b.UserID)
	assert.Equal(t, 120, b.Diamonds)
	assert.Equal(t, 0, b.FreezeDays)
	assert.Equal(t, 3, b.Version)

	empty := domain.DecodeFreezeDocument("u2", nil)
	assert.Equal(t, 0, empty.Diamonds)
}

func TestBuildRecurrence(t *testing.T) {
	tests := []struct {
		name      string
		frequency string
		dayOfWeek any
		dom, mon  int
		want      domain.Recurrence
		wantErr   bool
	}{
		{"empty is daily", "", nil, 0, 0, domain.Daily(), false},
		{"weekly from json number", "weekly", float64(1), 0, 0, domain.Weekly(time.Monday), false},
		{"weekly from name", "Weekly", "friday", 0, 0, domain.Weekly(time.Friday), false},
		{"weekly without day", "weekly", nil, 0, 0, domain.Recurrence{}, true},
		{"monthly", "monthly", nil, 31, 0, domain.Monthly(31), false},
		{"monthly out of range", "monthly", nil, 32, 0, domain.Recurrence{}, true},
		{"yearly leap day", "yearly", nil, 29, 2, domain.Yearly(time.February, 29), false},
		{"yearly bad month", "yearly", nil, 1, 13, domain.Recurrence{}, true},
		{"unknown kind", "hourly", nil, 0, 0, domain.Recurrence{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.BuildRecurrence(tt.frequency, tt.dayOfWeek, tt.dom, tt.mon)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRecurrence)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
