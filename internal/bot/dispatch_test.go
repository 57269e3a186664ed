package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gudTECH/nag-bot/internal/chat"
	"github.com/gudTECH/nag-bot/internal/store"
)

func TestRunDropsNoise(t *testing.T) {
	st := store.NewMemoryStore()
	ch := newFakeChat()
	m := NewManager(newTestDeps(st, newFakeTracker(), ch), nil)

	events := make(chan chat.Event, 4)
	events <- chat.Event{UserID: "bot", Text: "get hours", Hidden: true, DirectMessage: true}
	events <- chat.Event{UserID: "alice", Text: "get hours", DirectMessage: false}
	events <- chat.Event{UserID: "alice", Text: "   ", DirectMessage: true}
	close(events)

	m.Run(context.Background(), events)

	time.Sleep(50 * time.Millisecond)
	if n := ch.sentCount(); n != 0 {
		t.Fatalf("noise events should be dropped, got %d message(s)", n)
	}
	if _, ok := m.Registry().Lookup("alice"); ok {
		t.Fatal("no session should have been spawned")
	}
}

func TestRunRoutesDirectMessage(t *testing.T) {
	st := store.NewMemoryStore()
	ch := newFakeChat()
	activeUser(t, st, "alice")
	m := NewManager(newTestDeps(st, newFakeTracker(), ch), nil)

	events := make(chan chat.Event, 1)
	events <- chat.Event{UserID: "alice", ChannelID: "Dalice", Text: "get hours", DirectMessage: true}
	close(events)

	m.Run(context.Background(), events)

	if msg := waitMessage(t, ch); msg == "" {
		t.Fatal("expected an hours report")
	}
	s, ok := m.Registry().Lookup("alice")
	if !ok {
		t.Fatal("session should be registered")
	}
	waitExit(t, s)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(newTestDeps(st, newFakeTracker(), newFakeChat()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, make(chan chat.Event))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSpawnConflictDefersWhenBusy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ch := newFakeChat()
	m := NewManager(newTestDeps(st, newFakeTracker(), ch), nil)
	user := activeUser(t, st, "alice")

	busy, _ := m.Registry().Acquire("alice", func() *Session {
		return NewSession(m.deps, "alice", "Dalice")
	})

	conflict, err := st.CreateConflict(ctx, "alice", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	m.SpawnConflict(user, conflict)

	time.Sleep(50 * time.Millisecond)
	if n := ch.sentCount(); n != 0 {
		t.Fatalf("deferred spawn should send nothing, got %d message(s)", n)
	}
	if got, _ := m.Registry().Lookup("alice"); got != busy {
		t.Fatal("registry entry should be untouched")
	}
}

func TestSpawnConflictDeliversAfterBlockerExits(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ch := newFakeChat()
	m := NewManager(newTestDeps(st, newFakeTracker(), ch), nil)
	user := activeUser(t, st, "alice")

	blocker, _ := m.Registry().Acquire("alice", func() *Session {
		return NewSession(m.deps, "alice", "Dalice")
	})

	conflict, err := st.CreateConflict(ctx, "alice", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	m.SpawnConflict(user, conflict)
	if n := ch.sentCount(); n != 0 {
		t.Fatalf("prompt should be deferred, got %d message(s)", n)
	}

	// blocker exits; the next reconcile tick offers the same conflict again
	blocker.setActive(false)
	m.SpawnConflict(user, conflict)

	prompt := waitMessage(t, ch)
	if !strings.Contains(prompt, "nothing in progress") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}
}

func TestSpawnConflictDropsDuplicateOffer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ch := newFakeChat()
	m := NewManager(newTestDeps(st, newFakeTracker(), ch), nil)
	user := activeUser(t, st, "alice")

	conflict, err := st.CreateConflict(ctx, "alice", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	m.SpawnConflict(user, conflict)
	waitMessage(t, ch) // prompt

	m.SpawnConflict(user, conflict)
	time.Sleep(50 * time.Millisecond)
	if n := ch.sentCount(); n != 1 {
		t.Fatalf("duplicate offer should not re-prompt, got %d message(s)", n)
	}
}

func TestSpawnConflictPrompts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ch := newFakeChat()
	m := NewManager(newTestDeps(st, newFakeTracker(), ch), nil)
	user := activeUser(t, st, "alice")

	conflict, err := st.CreateConflict(ctx, "alice", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	m.SpawnConflict(user, conflict)

	if msg := waitMessage(t, ch); msg == "" {
		t.Fatal("expected a conflict prompt")
	}
}
