package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gudTECH/nag-bot/internal/store"
	"github.com/gudTECH/nag-bot/internal/tracker"
	"github.com/gudTECH/nag-bot/internal/window"
)

var ErrReconcilerAlreadyStarted = errors.New("reconciler already started")

// SessionSpawner opens the conversational prompt for a new conflict. The
// bot's manager implements it.
type SessionSpawner interface {
	SpawnConflict(user store.User, conflict store.Conflict)
}

type Reconciler struct {
	store    store.Store
	tracker  tracker.Client
	spawner  SessionSpawner
	logger   *log.Logger
	project  string
	location *time.Location
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now           func() time.Time
	tickerFactory func(interval time.Duration) reconcilerTicker
}

func New(st store.Store, tr tracker.Client, spawner SessionSpawner, logger *log.Logger, project string, location *time.Location, interval time.Duration) *Reconciler {
	if st == nil {
		panic("reconcile: store is required")
	}
	if tr == nil {
		panic("reconcile: tracker is required")
	}
	if spawner == nil {
		panic("reconcile: spawner is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if location == nil {
		location = time.UTC
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		store:    st,
		tracker:  tr,
		spawner:  spawner,
		logger:   logger,
		project:  project,
		location: location,
		interval: interval,
		now:      time.Now,
		tickerFactory: func(interval time.Duration) reconcilerTicker {
			return newRealTicker(interval)
		},
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrReconcilerAlreadyStarted
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	ticker := r.tickerFactory(r.interval)
	r.running = true
	r.stopCh = stopCh
	r.doneCh = doneCh
	r.mu.Unlock()

	go r.run(ctx, ticker, stopCh, doneCh)
	return nil
}

func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.running = false
	r.stopCh = nil
	r.doneCh = nil
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// run always makes it back to the select, so a failed tick never stops
// future ticks.
func (r *Reconciler) run(ctx context.Context, ticker reconcilerTicker, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.Chan():
			if err := r.Tick(ctx); err != nil {
				r.logger.Printf("tick failed: %v", err)
			}
		}
	}
}

// Tick runs one reconciliation pass over every active user.
func (r *Reconciler) Tick(ctx context.Context) error {
	now := r.now().In(r.location)
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil
	}

	users, err := r.store.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	for _, user := range users {
		if err := r.reconcileUser(ctx, user, now); err != nil {
			r.logger.Printf("reconcile %s: %v", user.Username, err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileUser(ctx context.Context, user store.User, now time.Time) error {
	tickets, err := r.tracker.SearchInProgress(ctx, r.project, user.Username)
	if err != nil {
		return fmt.Errorf("search in-progress tickets: %w", err)
	}

	w := window.Day(user.WorkStart, user.WorkEnd, user.LunchStart, user.LunchEnd, now, r.location)
	verdict := Classify(w, now, len(tickets))

	switch verdict {
	case VerdictHealthy:
		// back in compliance: remember the ticket, close any open dialogue
		if err := r.store.UpsertPrevTicket(ctx, user.Username, tickets[0].Key); err != nil {
			return fmt.Errorf("upsert prev ticket: %w", err)
		}
		return r.store.DeactivateUserConflicts(ctx, user.Username)
	case VerdictIdle:
		return r.store.DeactivateUserConflicts(ctx, user.Username)
	case VerdictOverAssigned:
		return r.openConflict(ctx, user, store.KindOverAssigned, ticketKeys(tickets))
	case VerdictUnderAssigned:
		return r.openConflict(ctx, user, store.KindUnderAssigned, nil)
	case VerdictAfterHours:
		return r.openConflict(ctx, user, store.KindAfterHours, ticketKeys(tickets))
	default:
		return nil
	}
}

// openConflict creates a conflict and spawns its dialogue unless an active
// conflict already covers it: same kind and same ticket-key set for
// over-assignment, same kind alone for the ticket-set-independent kinds.
func (r *Reconciler) openConflict(ctx context.Context, user store.User, kind store.ConflictKind, keys []string) error {
	existing, err := r.store.ActiveConflicts(ctx, user.Username)
	if err != nil {
		return fmt.Errorf("list active conflicts: %w", err)
	}
	for _, c := range existing {
		if c.Kind != kind {
			continue
		}
		if kind == store.KindOverAssigned && !sameKeySet(c.TicketKeys, keys) {
			continue
		}
		// still open: offer it again so a prompt deferred behind a busy
		// session eventually goes out. The spawner drops the offer when a
		// worker is already prompting for this conflict.
		r.spawner.SpawnConflict(user, c)
		return nil
	}

	if err := r.store.DeactivateUserConflicts(ctx, user.Username); err != nil {
		return fmt.Errorf("deactivate conflicts: %w", err)
	}
	conflict, err := r.store.CreateConflict(ctx, user.Username, kind, keys)
	if err != nil {
		return fmt.Errorf("create conflict: %w", err)
	}
	r.logger.Printf("user=%s conflict=%s tickets=%d", user.Username, kind, len(keys))
	r.spawner.SpawnConflict(user, conflict)
	return nil
}

func ticketKeys(tickets []tracker.Ticket) []string {
	keys := make([]string, 0, len(tickets))
	for _, t := range tickets {
		keys = append(keys, t.Key)
	}
	return keys
}

func sameKeySet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

type reconcilerTicker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct {
	ticker *time.Ticker
}

func newRealTicker(interval time.Duration) *realTicker {
	return &realTicker{ticker: time.NewTicker(interval)}
}

func (t *realTicker) Chan() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}
