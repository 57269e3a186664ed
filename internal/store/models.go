package store

import (
	"time"

	"github.com/gudTECH/nag-bot/internal/window"
)

// ConflictKind names one of the three policy violations the reconciler can
// detect.
type ConflictKind string

const (
	// KindOverAssigned: more than one ticket in progress during work hours.
	KindOverAssigned ConflictKind = "on_over"
	// KindUnderAssigned: nothing in progress during work hours.
	KindUnderAssigned ConflictKind = "on_under"
	// KindAfterHours: tickets left in progress outside work hours.
	KindAfterHours ConflictKind = "off_over"
)

// User is a team member's declared schedule. Users are created lazily on
// first contact and must opt in ("activate") before the bot nags them.
type User struct {
	Username   string
	WorkStart  window.Clock
	WorkEnd    window.Clock
	LunchStart window.Clock
	LunchEnd   window.Clock
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DefaultUser returns a fresh inactive profile with the stock 9-5 schedule
// and 12-1 lunch.
func DefaultUser(username string) User {
	return User{
		Username:   username,
		WorkStart:  window.NewClock(9, 0),
		WorkEnd:    window.NewClock(17, 0),
		LunchStart: window.NewClock(12, 0),
		LunchEnd:   window.NewClock(13, 0),
	}
}

// Conflict is one detected policy violation. At most one conflict per user is
// active at any instant.
type Conflict struct {
	ID         string
	Username   string
	Kind       ConflictKind
	TicketKeys []string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PrevTicket remembers the last single ticket a user was working on, so an
// under-assigned dialogue can offer to resume it. One row per user.
type PrevTicket struct {
	Username  string
	TicketKey string
	UpdatedAt time.Time
}
