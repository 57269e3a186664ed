// Package reconcile periodically checks every active user's ticket state
// against their declared working hours and opens conflict dialogues.
package reconcile

import (
	"time"

	"github.com/gudTECH/nag-bot/internal/window"
)

// Verdict is the outcome of classifying one user at one instant.
type Verdict int

const (
	// VerdictNone: inside a grace band, or a quiet lunch hour. No action.
	VerdictNone Verdict = iota
	// VerdictOverAssigned: more than one ticket in progress during lunch or
	// the core work window.
	VerdictOverAssigned
	// VerdictUnderAssigned: nothing in progress during the core work window.
	VerdictUnderAssigned
	// VerdictAfterHours: tickets in progress clearly outside the work day.
	VerdictAfterHours
	// VerdictHealthy: exactly one ticket in progress inside the core window.
	VerdictHealthy
	// VerdictIdle: clearly outside the work day with nothing in progress.
	VerdictIdle
)

func (v Verdict) String() string {
	switch v {
	case VerdictOverAssigned:
		return "over-assigned"
	case VerdictUnderAssigned:
		return "under-assigned"
	case VerdictAfterHours:
		return "after-hours"
	case VerdictHealthy:
		return "healthy"
	case VerdictIdle:
		return "idle"
	default:
		return "none"
	}
}

// Classify applies the policy in precedence order: the lunch window first,
// then the core work window (grace bands excluded), then clearly-outside,
// and finally the grace-band dead zone.
func Classify(w window.Windows, now time.Time, inProgress int) Verdict {
	switch {
	case w.InLunch(now):
		if inProgress > 1 {
			return VerdictOverAssigned
		}
		return VerdictNone
	case w.InCore(now):
		switch {
		case inProgress > 1:
			return VerdictOverAssigned
		case inProgress == 0:
			return VerdictUnderAssigned
		default:
			return VerdictHealthy
		}
	case w.OutsideDay(now):
		if inProgress > 0 {
			return VerdictAfterHours
		}
		return VerdictIdle
	default:
		return VerdictNone
	}
}
