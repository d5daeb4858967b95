package domain

import (
	"slices"

	"cloud.google.com/go/civil"
)

// CompletionLedger is a read-only view over the completion records of one or
// more habits. The engine never writes through it.
type CompletionLedger interface {
	HasCompletion(habitID string, d civil.Date) bool
	// LatestCompletion returns nil when the habit has never been completed.
	LatestCompletion(habitID string) *civil.Date
	// CompletionsInRange is sorted ascending, bounds inclusive.
	CompletionsInRange(habitID string, from, to civil.Date) []civil.Date
}

var _ CompletionLedger = (*CompletionSet)(nil)

// CompletionSet is an immutable CompletionLedger built from repository
// records. The zero value is an empty ledger.
type CompletionSet struct {
	byHabit map[string][]civil.Date
}

func NewCompletionSet(records []*CompletionRecord) *CompletionSet {
	s := &CompletionSet{byHabit: make(map[string][]civil.Date)}
	for _, r := range records {
		if r == nil || !r.Date.IsValid() {
			continue
		}
		s.byHabit[r.HabitID] = append(s.byHabit[r.HabitID], r.Date)
	}

	for id, dates := range s.byHabit {
		slices.SortFunc(dates, compareDates)
		s.byHabit[id] = slices.Compact(dates)
	}

	return s
}

// EmptyLedger stands in for completion data that could not be read.
func EmptyLedger() *CompletionSet {
	return &CompletionSet{}
}

func (s *CompletionSet) HasCompletion(habitID string, d civil.Date) bool {
	if s == nil {
		return false
	}
	_, found := slices.BinarySearchFunc(s.byHabit[habitID], d, compareDates)
	return found
}

func (s *CompletionSet) LatestCompletion(habitID string) *civil.Date {
	if s == nil {
		return nil
	}
	dates := s.byHabit[habitID]
	if len(dates) == 0 {
		return nil
	}
	return datePtr(dates[len(dates)-1])
}

func (s *CompletionSet) CompletionsInRange(habitID string, from, to civil.Date) []civil.Date {
	if s == nil || to.Before(from) {
		return nil
	}
	dates := s.byHabit[habitID]
	lo, _ := slices.BinarySearchFunc(dates, from, compareDates)
	hi, found := slices.BinarySearchFunc(dates, to, compareDates)
	if found {
		hi++
	}
	return slices.Clone(dates[lo:hi])
}

func (s *CompletionSet) Len(habitID string) int {
	if s == nil {
		return 0
	}
	return len(s.byHabit[habitID])
}

func compareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
