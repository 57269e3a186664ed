package bot

import (
	"io"
	"log"
	"time"

	"github.com/gudTECH/nag-bot/internal/chat"
	"github.com/gudTECH/nag-bot/internal/store"
	"github.com/gudTECH/nag-bot/internal/tracker"
)

const defaultSessionTimeout = 1800 * time.Second

// Deps bundles the collaborators every session worker needs. One Deps value
// is built at startup and shared; all fields are read-only after that.
type Deps struct {
	Store            store.Store
	Tracker          tracker.Client
	Chat             chat.Sender
	Logger           *log.Logger
	Project          string
	HaltTransition   string
	ResumeTransition string
	// SessionTimeout is the mailbox receive timeout, measured from the last
	// dequeue.
	SessionTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if d.SessionTimeout <= 0 {
		d.SessionTimeout = defaultSessionTimeout
	}
	return d
}
