package bot

import (
	"context"
	"strings"

	"github.com/gudTECH/nag-bot/internal/chat"
	"github.com/gudTECH/nag-bot/internal/store"
)

// Manager routes inbound chat events to session workers and spawns
// conflict-bound workers for the reconciler.
type Manager struct {
	deps     Deps
	registry *Registry
}

func NewManager(deps Deps, registry *Registry) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{deps: deps.withDefaults(), registry: registry}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Run consumes the inbound event stream until ctx is done or the stream
// closes. Hidden, non-DM and empty events are dropped.
func (m *Manager) Run(ctx context.Context, events <-chan chat.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Hidden || !event.DirectMessage || strings.TrimSpace(event.Text) == "" {
				continue
			}
			m.deps.Logger.Printf("%s - %s", event.UserID, event.Text)
			m.handle(event)
		}
	}
}

func (m *Manager) handle(event chat.Event) {
	s, created := m.registry.Acquire(event.UserID, func() *Session {
		return NewSession(m.deps, event.UserID, event.ChannelID)
	})
	if err := s.Queue(event.Text); err != nil {
		m.deps.Logger.Printf("queue message for %s: %v", event.UserID, err)
	}
	if created {
		s.Start()
	}
}

// SpawnConflict starts a worker for an active conflict. If the user already
// has a live session the prompt is deferred: the conflict stays active and
// the reconciler offers it again on a later tick, so the prompt goes out
// once that session exits. An offer for the conflict a worker is already
// prompting for is dropped.
func (m *Manager) SpawnConflict(user store.User, conflict store.Conflict) {
	s, created := m.registry.Acquire(user.Username, func() *Session {
		return NewConflictSession(m.deps, user, conflict)
	})
	if !created {
		if s.ConflictID() == conflict.ID {
			return
		}
		m.deps.Logger.Printf("session for %s is busy, deferring %s prompt", user.Username, conflict.Kind)
		return
	}
	s.Start()
}
