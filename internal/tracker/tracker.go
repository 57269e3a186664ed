// Package tracker talks to the issue tracker that holds the team's tickets.
package tracker

import (
	"context"
	"errors"
)

var ErrNoTransition = errors.New("transition not available")

// Ticket is a work item as the bot sees it.
type Ticket struct {
	Key   string
	Title string
}

// Client is the surface the bot needs from the issue tracker.
type Client interface {
	// SearchInProgress returns the tickets currently in progress for the
	// assignee inside the project, in a stable order.
	SearchInProgress(ctx context.Context, project, assignee string) ([]Ticket, error)
	// Transition moves a ticket through the named workflow transition.
	// Returns ErrNoTransition if the ticket does not offer it.
	Transition(ctx context.Context, ticketKey, transitionName string) error
}
