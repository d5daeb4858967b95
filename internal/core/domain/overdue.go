package domain

import "time"

type OverdueHabit struct {
	Habit   *Habit        `json:"habit"`
	Overdue time.Duration `json:"overdue_ns"`
}

type OverdueReport struct {
	UserID      string         `json:"user_id"`
	Severity    SeverityState  `json:"severity"`
	Overdue     []OverdueHabit `json:"overdue"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// OverdueAt reports whether h is overdue at now, and by how much. The
// evaluated date is the calendar date of now in now's location.
func (h *Habit) OverdueAt(ledger CompletionLedger, now time.Time) (time.Duration, bool) {
	if h.IsDeleted() || !h.ReminderEnabled {
		return 0, false
	}

	today := DateIn(now, now.Location())
	if !h.IsScheduledOn(today) {
		return 0, false
	}

	due := h.DueAt(today, now.Location())
	if now.Before(due) {
		return 0, false
	}

	if ledger != nil && ledger.HasCompletion(h.ID, today) {
		return 0, false
	}

	return now.Sub(due), true
}
