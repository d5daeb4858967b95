package domain

import (
	"errors"
	"slices"

	"cloud.google.com/go/civil"
)

var (
	ErrStreakContention = errors.New("streak recompute gave up after repeated conflicts")
)

// StreakResult is the outcome of one recompute. FreezeDelta is the change to
// the freeze-day balance (never positive).
type StreakResult struct {
	Habit       *Habit
	FreezeDelta int
	Changed     bool
	Broken      bool
}

// RecomputeStreak advances the streak and gap fields of h up to today.
//
// Scheduled days between the last completion and today that have no
// completion are bridged with freeze days taken from freeze. A date already
// in FreezeAppliedDates is never charged again, so replaying the same inputs
// is a no-op. When freeze runs out the streak breaks and StreakBrokenOn
// records the uncovered day; missed days after a break are not charged.
// Freeze-covered days keep the streak alive but do not extend it. Today is
// only counted when completed, never charged. Completions on days the
// recurrence does not select are kept in the ledger but never touch the
// streak or LastCompletedDate.
//
// h is not modified; the returned Habit is a copy.
func RecomputeStreak(h *Habit, ledger CompletionLedger, freeze FreezeSource, today civil.Date) StreakResult {
	if ledger == nil {
		ledger = EmptyLedger()
	}

	next := h.Clone()
	res := StreakResult{Habit: next}

	if next.LastCompletedDate == nil {
		first := latestScheduledCompletionThrough(next, ledger, today)
		if first == nil {
			return res
		}
		next.LastCompletedDate = first
		next.Streak = 1
		next.StreakBrokenOn = nil
		resetGap(next)
	}

	last := *next.LastCompletedDate
	if last.Before(today) {
		broken := next.StreakBrokenOn != nil && next.StreakBrokenOn.After(last)

		for d := last.AddDays(1); d.Before(today); d = d.AddDays(1) {
			if !next.IsScheduledOn(d) {
				continue
			}

			if ledger.HasCompletion(h.ID, d) {
				closeGap(next, d, broken)
				broken = false
				continue
			}

			if broken || next.HasFreezeApplied(d) {
				continue
			}

			if freeze != nil && freeze.ConsumeFreezeDay() {
				res.FreezeDelta--
				next.FreezeAppliedDates = append(next.FreezeAppliedDates, d)
				next.FreezeDaysUsedForCurrentGap++
				if next.CurrentGapStartDate == nil {
					next.CurrentGapStartDate = datePtr(d)
				}
				continue
			}

			next.Streak = 0
			next.StreakBrokenOn = datePtr(d)
			resetGap(next)
			broken = true
			res.Broken = true
		}

		if next.IsScheduledOn(today) && ledger.HasCompletion(h.ID, today) {
			closeGap(next, today, broken)
		}
	}

	if next.Streak > next.HighestStreakAchieved {
		next.HighestStreakAchieved = next.Streak
	}

	res.Changed = !streakFieldsEqual(h, next)
	return res
}

// closeGap counts a completion on d: it either extends the streak or, after
// a break, starts a new one.
func closeGap(h *Habit, d civil.Date, broken bool) {
	if broken {
		h.Streak = 1
	} else {
		h.Streak++
	}
	h.StreakBrokenOn = nil
	h.LastCompletedDate = datePtr(d)
	resetGap(h)
}

func resetGap(h *Habit) {
	h.CurrentGapStartDate = nil
	h.FreezeDaysUsedForCurrentGap = 0
}

func latestScheduledCompletionThrough(h *Habit, ledger CompletionLedger, today civil.Date) *civil.Date {
	latest := ledger.LatestCompletion(h.ID)
	if latest == nil {
		return nil
	}
	if !latest.After(today) && h.IsScheduledOn(*latest) {
		return latest
	}
	dates := ledger.CompletionsInRange(h.ID, civil.Date{Year: 1, Month: 1, Day: 1}, today)
	for i := len(dates) - 1; i >= 0; i-- {
		if h.IsScheduledOn(dates[i]) {
			return datePtr(dates[i])
		}
	}
	return nil
}

func streakFieldsEqual(a, b *Habit) bool {
	return equalDate(a.LastCompletedDate, b.LastCompletedDate) &&
		a.Streak == b.Streak &&
		a.HighestStreakAchieved == b.HighestStreakAchieved &&
		equalDate(a.CurrentGapStartDate, b.CurrentGapStartDate) &&
		a.FreezeDaysUsedForCurrentGap == b.FreezeDaysUsedForCurrentGap &&
		slices.Equal(a.FreezeAppliedDates, b.FreezeAppliedDates) &&
		equalDate(a.StreakBrokenOn, b.StreakBrokenOn)
}

func equalDate(a, b *civil.Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
