package bot

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gudTECH/nag-bot/internal/store"
	"github.com/gudTECH/nag-bot/internal/tracker"
)

type fakeChat struct {
	mu       sync.Mutex
	sent     []string
	messages chan string
}

func newFakeChat() *fakeChat {
	return &fakeChat{messages: make(chan string, 64)}
}

func (f *fakeChat) ResolveDirectChannel(userID string) (string, error) {
	return "D" + userID, nil
}

func (f *fakeChat) SendMessage(_, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	f.messages <- text
	return nil
}

func (f *fakeChat) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeTracker struct {
	mu          sync.Mutex
	inWork      map[string][]tracker.Ticket
	transitions []string // "KEY:transition name"
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{inWork: make(map[string][]tracker.Ticket)}
}

func (f *fakeTracker) SearchInProgress(_ context.Context, _, assignee string) ([]tracker.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.Ticket(nil), f.inWork[assignee]...), nil
}

func (f *fakeTracker) Transition(_ context.Context, ticketKey, transitionName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, ticketKey+":"+transitionName)
	return nil
}

func (f *fakeTracker) applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transitions...)
}

func newTestDeps(st store.Store, tr tracker.Client, ch *fakeChat) Deps {
	return Deps{
		Store:            st,
		Tracker:          tr,
		Chat:             ch,
		Logger:           log.New(os.Stdout, "", 0),
		Project:          "PROJ",
		HaltTransition:   "Stop Progress",
		ResumeTransition: "Start Progress",
		SessionTimeout:   5 * time.Second,
	}
}

func waitMessage(t *testing.T, ch *fakeChat) string {
	t.Helper()
	select {
	case msg := <-ch.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a chat message")
		return ""
	}
}

func waitExit(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for s.Active() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for session exit")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func activeUser(t *testing.T, st store.Store, username string) store.User {
	t.Helper()
	ctx := context.Background()
	user, err := st.GetOrCreateUser(ctx, username)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	user.Active = true
	if err := st.SaveUser(ctx, user); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return user
}

func TestOverAssignedDialogueRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "alice")
	conflict, err := st.CreateConflict(ctx, "alice", store.KindOverAssigned, []string{"PROJ-1", "PROJ-2", "PROJ-3"})
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	s := NewConflictSession(newTestDeps(st, tr, ch), user, conflict)
	s.Start()

	prompt := waitMessage(t, ch)
	if !strings.Contains(prompt, "1. PROJ-1") || !strings.Contains(prompt, "3. PROJ-3") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}

	if err := s.Queue("2"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	confirm := waitMessage(t, ch)
	if !strings.Contains(confirm, "PROJ-2") {
		t.Fatalf("unexpected confirmation: %q", confirm)
	}

	applied := tr.applied()
	if len(applied) != 2 || applied[0] != "PROJ-1:Stop Progress" || applied[1] != "PROJ-3:Stop Progress" {
		t.Fatalf("transitions = %v", applied)
	}
	conflicts, err := st.ActiveConflicts(ctx, "alice")
	if err != nil {
		t.Fatalf("active conflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("conflict should be deactivated, got %d active", len(conflicts))
	}
	waitExit(t, s)
}

func TestOverAssignedIgnoresOutOfRangePick(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "alice")
	conflict, err := st.CreateConflict(ctx, "alice", store.KindOverAssigned, []string{"PROJ-1", "PROJ-2"})
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	s := NewConflictSession(newTestDeps(st, tr, ch), user, conflict)
	s.Start()
	waitMessage(t, ch) // prompt

	if err := s.Queue("9"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := s.Queue("0"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := s.Queue("1"); err != nil {
		t.Fatalf("queue: %v", err)
	}

	confirm := waitMessage(t, ch)
	if !strings.Contains(confirm, "PROJ-1") {
		t.Fatalf("unexpected confirmation: %q", confirm)
	}
	if got := tr.applied(); len(got) != 1 || got[0] != "PROJ-2:Stop Progress" {
		t.Fatalf("transitions = %v", got)
	}
	waitExit(t, s)
}

func TestUnderAssignedYesResumesPreviousTicket(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "bob")
	if err := st.UpsertPrevTicket(ctx, "bob", "PROJ-9"); err != nil {
		t.Fatalf("upsert prev: %v", err)
	}
	conflict, err := st.CreateConflict(ctx, "bob", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	s := NewConflictSession(newTestDeps(st, tr, ch), user, conflict)
	s.Start()

	prompt := waitMessage(t, ch)
	if !strings.Contains(prompt, "PROJ-9") {
		t.Fatalf("prompt should suggest PROJ-9: %q", prompt)
	}
	if err := s.Queue("yes"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	confirm := waitMessage(t, ch)
	if !strings.Contains(confirm, "Resumed PROJ-9") {
		t.Fatalf("unexpected confirmation: %q", confirm)
	}
	if got := tr.applied(); len(got) != 1 || got[0] != "PROJ-9:Start Progress" {
		t.Fatalf("transitions = %v", got)
	}
	waitExit(t, s)
}

func TestUnderAssignedResolveClosesDialogue(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "bob")
	conflict, err := st.CreateConflict(ctx, "bob", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	s := NewConflictSession(newTestDeps(st, tr, ch), user, conflict)
	s.Start()
	waitMessage(t, ch) // prompt

	// unrelated chatter keeps the dialogue open
	if err := s.Queue("what is this"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := s.Queue("resolve"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	confirm := waitMessage(t, ch)
	if !strings.Contains(confirm, "resolved") {
		t.Fatalf("unexpected confirmation: %q", confirm)
	}
	if len(tr.applied()) != 0 {
		t.Fatalf("resolve should not touch the tracker: %v", tr.applied())
	}
	waitExit(t, s)
}

func TestAfterHoursDialogue(t *testing.T) {
	cases := []struct {
		name            string
		reply           string
		wantTransitions int
	}{
		{name: "yes halts everything", reply: "yes", wantTransitions: 2},
		{name: "no leaves tickets alone", reply: "no", wantTransitions: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemoryStore()
			tr := newFakeTracker()
			ch := newFakeChat()
			user := activeUser(t, st, "carol")
			conflict, err := st.CreateConflict(ctx, "carol", store.KindAfterHours, []string{"PROJ-1", "PROJ-2"})
			if err != nil {
				t.Fatalf("create conflict: %v", err)
			}

			s := NewConflictSession(newTestDeps(st, tr, ch), user, conflict)
			s.Start()
			waitMessage(t, ch) // prompt

			if err := s.Queue(tc.reply); err != nil {
				t.Fatalf("queue: %v", err)
			}
			waitMessage(t, ch) // confirmation
			if got := len(tr.applied()); got != tc.wantTransitions {
				t.Fatalf("transitions = %d, want %d", got, tc.wantTransitions)
			}
			conflicts, err := st.ActiveConflicts(ctx, "carol")
			if err != nil {
				t.Fatalf("active conflicts: %v", err)
			}
			if len(conflicts) != 0 {
				t.Fatalf("conflict should be deactivated")
			}
			waitExit(t, s)
		})
	}
}

func TestTimeoutSendsSingleNoticeAndExits(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "dave")
	conflict, err := st.CreateConflict(ctx, "dave", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	deps := newTestDeps(st, tr, ch)
	deps.SessionTimeout = 60 * time.Millisecond
	s := NewConflictSession(deps, user, conflict)
	s.Start()

	waitMessage(t, ch) // prompt
	notice := waitMessage(t, ch)
	if notice != timeoutNotice {
		t.Fatalf("unexpected notice: %q", notice)
	}
	waitExit(t, s)

	select {
	case extra := <-ch.messages:
		t.Fatalf("unexpected extra message: %q", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestReplyResetsTimeoutWindow(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "dave")
	conflict, err := st.CreateConflict(ctx, "dave", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	deps := newTestDeps(st, tr, ch)
	deps.SessionTimeout = 500 * time.Millisecond
	s := NewConflictSession(deps, user, conflict)
	s.Start()
	waitMessage(t, ch) // prompt

	// a reply near the end of the window pushes the deadline out
	time.Sleep(350 * time.Millisecond)
	if err := s.Queue("hmm"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if !s.Active() {
		t.Fatal("session should still be alive inside the refreshed window")
	}

	notice := waitMessage(t, ch)
	if notice != timeoutNotice {
		t.Fatalf("unexpected notice: %q", notice)
	}
	waitExit(t, s)
}

func TestDialogueGoesQuietWhenConflictResolvedElsewhere(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "dave")
	conflict, err := st.CreateConflict(ctx, "dave", store.KindOverAssigned, []string{"PROJ-1", "PROJ-2"})
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	s := NewConflictSession(newTestDeps(st, tr, ch), user, conflict)
	s.Start()
	waitMessage(t, ch) // prompt

	// the reconciler closes the conflict behind the dialogue's back
	if err := st.DeactivateUserConflicts(ctx, "dave"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := s.Queue("2"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	waitExit(t, s)

	if got := tr.applied(); len(got) != 0 {
		t.Fatalf("stale dialogue must not touch the tracker: %v", got)
	}
	if n := ch.sentCount(); n != 1 {
		t.Fatalf("expected only the prompt, got %d message(s)", n)
	}
}

func TestTimeoutNoticeSuppressedWhenConflictResolvedElsewhere(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "dave")
	conflict, err := st.CreateConflict(ctx, "dave", store.KindUnderAssigned, nil)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	deps := newTestDeps(st, tr, ch)
	deps.SessionTimeout = 60 * time.Millisecond
	s := NewConflictSession(deps, user, conflict)
	s.Start()
	waitMessage(t, ch) // prompt

	if err := st.DeactivateUserConflicts(ctx, "dave"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	waitExit(t, s)

	select {
	case extra := <-ch.messages:
		t.Fatalf("unexpected message after resolution: %q", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestActivateEnablesUser(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()

	s := NewSession(newTestDeps(st, tr, ch), "erin", "Derin")
	if err := s.Queue("activate"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()

	if msg := waitMessage(t, ch); msg != "User activated" {
		t.Fatalf("unexpected reply: %q", msg)
	}
	waitExit(t, s)

	user, err := st.GetOrCreateUser(ctx, "erin")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !user.Active {
		t.Fatal("user should be active after 'activate'")
	}
}

func TestInactiveUserStillGetsCommandOutput(t *testing.T) {
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()

	s := NewSession(newTestDeps(st, tr, ch), "frank", "Dfrank")
	if err := s.Queue("get hours"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()

	// the notice goes out first, then dispatch still runs the command
	if msg := waitMessage(t, ch); msg != inactiveNotice {
		t.Fatalf("expected inactive notice, got %q", msg)
	}
	report := waitMessage(t, ch)
	if !strings.HasPrefix(report, "Inactive") || !strings.Contains(report, "09:00 AM - 05:00 PM") {
		t.Fatalf("unexpected hours report: %q", report)
	}
	waitExit(t, s)
}

func TestSetHoursPersists(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	activeUser(t, st, "gail")

	s := NewSession(newTestDeps(st, tr, ch), "gail", "Dgail")
	if err := s.Queue("set hours 9am-5:30pm"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()

	if msg := waitMessage(t, ch); msg != "Hours set" {
		t.Fatalf("unexpected reply: %q", msg)
	}
	waitExit(t, s)

	user, err := st.GetOrCreateUser(ctx, "gail")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.WorkStart.String() != "09:00" || user.WorkEnd.String() != "17:30" {
		t.Fatalf("hours = %s-%s", user.WorkStart, user.WorkEnd)
	}
}

func TestSetLunchHoursPersists(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	activeUser(t, st, "gail")

	s := NewSession(newTestDeps(st, tr, ch), "gail", "Dgail")
	if err := s.Queue("set lunch hours 11:30am-12:30pm"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()

	if msg := waitMessage(t, ch); msg != "Lunch hours set" {
		t.Fatalf("unexpected reply: %q", msg)
	}
	waitExit(t, s)

	user, err := st.GetOrCreateUser(ctx, "gail")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.LunchStart.String() != "11:30" || user.LunchEnd.String() != "12:30" {
		t.Fatalf("lunch = %s-%s", user.LunchStart, user.LunchEnd)
	}
}

func TestPauseHaltsEverythingAndRemembersOne(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	activeUser(t, st, "hank")
	tr.inWork["hank"] = []tracker.Ticket{{Key: "PROJ-1"}, {Key: "PROJ-2"}}
	if _, err := st.CreateConflict(ctx, "hank", store.KindOverAssigned, []string{"PROJ-1", "PROJ-2"}); err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	s := NewSession(newTestDeps(st, tr, ch), "hank", "Dhank")
	if err := s.Queue("pause"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()

	if msg := waitMessage(t, ch); msg != "Paused 2 ticket(s)." {
		t.Fatalf("unexpected reply: %q", msg)
	}
	waitExit(t, s)

	applied := tr.applied()
	if len(applied) != 2 {
		t.Fatalf("transitions = %v", applied)
	}
	prev, err := st.GetPrevTicket(ctx, "hank")
	if err != nil {
		t.Fatalf("prev ticket: %v", err)
	}
	if prev.TicketKey != "PROJ-1" {
		t.Fatalf("prev ticket = %s", prev.TicketKey)
	}
	conflicts, err := st.ActiveConflicts(ctx, "hank")
	if err != nil {
		t.Fatalf("active conflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("pause should deactivate conflicts")
	}
}

func TestResumeRestoresPreviousTicket(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	activeUser(t, st, "iris")
	tr.inWork["iris"] = []tracker.Ticket{{Key: "PROJ-3"}}
	if err := st.UpsertPrevTicket(ctx, "iris", "PROJ-8"); err != nil {
		t.Fatalf("upsert prev: %v", err)
	}

	s := NewSession(newTestDeps(st, tr, ch), "iris", "Diris")
	if err := s.Queue("resume"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()

	if msg := waitMessage(t, ch); msg != "Resumed PROJ-8." {
		t.Fatalf("unexpected reply: %q", msg)
	}
	waitExit(t, s)

	applied := tr.applied()
	if len(applied) != 2 || applied[0] != "PROJ-3:Stop Progress" || applied[1] != "PROJ-8:Start Progress" {
		t.Fatalf("transitions = %v", applied)
	}
}

func TestResumeWithoutPreviousTicket(t *testing.T) {
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	activeUser(t, st, "jane")

	s := NewSession(newTestDeps(st, tr, ch), "jane", "Djane")
	if err := s.Queue("resume"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()

	if msg := waitMessage(t, ch); msg != "No previous ticket on record." {
		t.Fatalf("unexpected reply: %q", msg)
	}
	waitExit(t, s)
}

func TestHelpIsContextSensitive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	user := activeUser(t, st, "kate")

	s := NewSession(newTestDeps(st, tr, ch), "kate", "Dkate")
	if err := s.Queue("help"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()
	if msg := waitMessage(t, ch); msg != genericHelp {
		t.Fatalf("expected generic help, got %q", msg)
	}
	waitExit(t, s)

	conflict, err := st.CreateConflict(ctx, "kate", store.KindOverAssigned, []string{"PROJ-1", "PROJ-2"})
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	cs := NewConflictSession(newTestDeps(st, tr, ch), user, conflict)
	cs.Start()
	waitMessage(t, ch) // prompt
	if err := cs.Queue("help"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if msg := waitMessage(t, ch); msg != overAssignedHelp {
		t.Fatalf("expected over-assigned help, got %q", msg)
	}
}

func TestUnrecognizedTextIsSilentlyIgnored(t *testing.T) {
	st := store.NewMemoryStore()
	tr := newFakeTracker()
	ch := newFakeChat()
	activeUser(t, st, "liam")

	s := NewSession(newTestDeps(st, tr, ch), "liam", "Dliam")
	if err := s.Queue("how is the weather"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	s.Start()
	waitExit(t, s)

	if n := ch.sentCount(); n != 0 {
		t.Fatalf("expected silence, got %d message(s)", n)
	}
}
