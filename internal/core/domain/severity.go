package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SeverityState is derived from the overdue set and safe to recompute at any
// time. It is never stored as a source of truth.
type SeverityState int

const (
	SeverityNone SeverityState = iota
	SeverityWarning
	SeverityCritical
)

// ClassifySeverity: 0 overdue -> NONE, 1 -> WARNING, 2+ -> CRITICAL.
func ClassifySeverity(overdueCount int) SeverityState {
	switch {
	case overdueCount <= 0:
		return SeverityNone
	case overdueCount == 1:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

func (s SeverityState) String() string {
	switch s {
	case SeverityNone:
		return "NONE"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("SeverityState(%d)", int(s))
	}
}

func (s SeverityState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SeverityState) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "NONE":
		*s = SeverityNone
	case "WARNING":
		*s = SeverityWarning
	case "CRITICAL":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// SeverityChange is emitted to the presentation collaborator whenever the
// severity of a user moves. Reconciling it against OS state is the
// collaborator's job.
type SeverityChange struct {
	UserID       string        `json:"user_id"`
	Previous     SeverityState `json:"previous"`
	Current      SeverityState `json:"current"`
	OverdueCount int           `json:"overdue_count"`
	At           time.Time     `json:"at"`
}

// SeverityPublisher delivers severity changes to whatever presents them.
type SeverityPublisher interface {
	Publish(ctx context.Context, change SeverityChange) error
}
