package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gudTECH/nag-bot/internal/store"
)

const mailboxSize = 16

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrMailboxFull   = errors.New("session mailbox full")
)

const inactiveNotice = "Your user appears to be inactive, you have either " +
	"disabled it or have not initialized it. If you just want to activate it " +
	"with the current settings (defaults are 9-5 lunch 12-1), reply with " +
	"'activate'. To learn how to set hours, reply with 'help'."

const timeoutNotice = "Time's up. Please resolve this directly in the issue tracker."

// Session is one user's conversational worker. The worker goroutine is the
// only consumer of the mailbox and the only writer of the dialogue state;
// Queue and Active are the concurrent surface.
type Session struct {
	deps       Deps
	username   string
	conflictID string
	mailbox    chan string

	mu     sync.Mutex
	active bool

	// worker-owned from here down
	channelID      string
	user           store.User
	userLoaded     bool
	conflict       *store.Conflict
	prevSuggestion string
}

// NewSession builds a context-free session for a raw inbound message. The
// profile is loaded lazily by the worker.
func NewSession(deps Deps, username, channelID string) *Session {
	return &Session{
		deps:      deps.withDefaults(),
		username:  username,
		channelID: channelID,
		mailbox:   make(chan string, mailboxSize),
		active:    true,
	}
}

// NewConflictSession builds a session bound to a freshly created conflict.
// The worker opens with the conflict's prompt.
func NewConflictSession(deps Deps, user store.User, conflict store.Conflict) *Session {
	return &Session{
		deps:       deps.withDefaults(),
		username:   user.Username,
		conflictID: conflict.ID,
		mailbox:    make(chan string, mailboxSize),
		active:     true,
		user:       user,
		userLoaded: true,
		conflict:   &conflict,
	}
}

// ConflictID is the id of the conflict this worker prompts for, or "" for a
// plain command session. Set once at construction.
func (s *Session) ConflictID() string {
	return s.conflictID
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) setActive(v bool) {
	s.mu.Lock()
	s.active = v
	s.mu.Unlock()
}

// Queue enqueues one inbound message without blocking.
func (s *Session) Queue(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrSessionClosed
	}
	select {
	case s.mailbox <- message:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Start launches the worker goroutine.
func (s *Session) Start() {
	go s.run()
}

func (s *Session) run() {
	defer s.setActive(false)
	ctx := context.Background()

	if !s.userLoaded {
		user, err := s.deps.Store.GetOrCreateUser(ctx, s.username)
		if err != nil {
			s.deps.Logger.Printf("load user %s: %v", s.username, err)
			return
		}
		s.user = user
		s.userLoaded = true
	}
	if s.conflict != nil {
		s.sendPrompt(ctx)
	}

	timer := time.NewTimer(s.deps.SessionTimeout)
	defer timer.Stop()
	for {
		select {
		case message := <-s.mailbox:
			s.process(ctx, message)
		case <-timer.C:
			if s.conflictOpen(ctx) {
				s.send(timeoutNotice)
			}
			return
		}

		if !s.conflictOpen(ctx) {
			return
		}
		// fresh window per dequeue
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.deps.SessionTimeout)
	}
}

func (s *Session) sendPrompt(ctx context.Context) {
	switch s.conflict.Kind {
	case store.KindOverAssigned:
		titles := s.ticketTitles(ctx)
		var b strings.Builder
		fmt.Fprintf(&b, "You have %d tickets in progress:\n", len(s.conflict.TicketKeys))
		for i, key := range s.conflict.TicketKeys {
			if title := titles[key]; title != "" {
				fmt.Fprintf(&b, "%d. %s -- %s\n", i+1, key, title)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", i+1, key)
			}
		}
		b.WriteString("Which one are you actively working on? Reply with its number and I'll put the rest on hold.")
		s.send(b.String())
	case store.KindUnderAssigned:
		prev, err := s.deps.Store.GetPrevTicket(ctx, s.username)
		if err == nil && prev.TicketKey != "" {
			s.prevSuggestion = prev.TicketKey
			s.send(fmt.Sprintf("You have nothing in progress. Want to pick %s back up? Reply yes or no.", prev.TicketKey))
		} else {
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				s.deps.Logger.Printf("prev ticket for %s: %v", s.username, err)
			}
			s.send("You have nothing in progress and I have no previous ticket on record. Reply 'resolve' once you've picked something up.")
		}
	case store.KindAfterHours:
		s.send(fmt.Sprintf("You still have %d ticket(s) in progress outside your work hours: %s. Move them all to hold? Reply yes or no.",
			len(s.conflict.TicketKeys), strings.Join(s.conflict.TicketKeys, ", ")))
	}
}

// ticketTitles fetches titles for the conflict's keys on a best-effort
// basis; the prompt falls back to bare keys.
func (s *Session) ticketTitles(ctx context.Context) map[string]string {
	tickets, err := s.deps.Tracker.SearchInProgress(ctx, s.deps.Project, s.username)
	if err != nil {
		s.deps.Logger.Printf("search tickets for %s: %v", s.username, err)
		return nil
	}
	titles := make(map[string]string, len(tickets))
	for _, t := range tickets {
		titles[t.Key] = t.Title
	}
	return titles
}

func (s *Session) process(ctx context.Context, message string) {
	if message == "activate" {
		s.user.Active = true
		if err := s.deps.Store.SaveUser(ctx, s.user); err != nil {
			s.deps.Logger.Printf("activate %s: %v", s.username, err)
		} else {
			s.send("User activated")
		}
		// no return: the same text keeps flowing into dispatch below
	}
	if !s.user.Active {
		s.send(inactiveNotice)
		// no return either; dispatch continues for an inactive user
	}

	message = strings.ToLower(message)
	if s.conflictOpen(ctx) {
		s.handleConflict(ctx, message)
	}
	s.handleCommand(ctx, message)
}

// conflictOpen reports whether the dialogue's conflict is still active,
// refreshing the worker's copy from the store. The reconciler closes
// conflicts behind the worker's back when a user self-heals; a dialogue on a
// closed conflict must go quiet instead of acting on stale tickets.
func (s *Session) conflictOpen(ctx context.Context) bool {
	if s.conflict == nil || !s.conflict.Active {
		return false
	}
	open, err := s.deps.Store.ActiveConflicts(ctx, s.username)
	if err != nil {
		s.deps.Logger.Printf("refresh conflict for %s: %v", s.username, err)
		return true
	}
	for _, c := range open {
		if c.ID == s.conflict.ID {
			return true
		}
	}
	s.conflict.Active = false
	return false
}

func (s *Session) handleConflict(ctx context.Context, message string) {
	switch s.conflict.Kind {
	case store.KindOverAssigned:
		s.handleOverAssigned(ctx, message)
	case store.KindUnderAssigned:
		s.handleUnderAssigned(ctx, message)
	case store.KindAfterHours:
		s.handleAfterHours(ctx, message)
	}
}

func (s *Session) handleOverAssigned(ctx context.Context, message string) {
	if !ticketPickPattern.MatchString(message) {
		return
	}
	pick, err := strconv.Atoi(message)
	if err != nil || pick < 1 || pick > len(s.conflict.TicketKeys) {
		return
	}

	keep := s.conflict.TicketKeys[pick-1]
	halted := 0
	for i, key := range s.conflict.TicketKeys {
		if i == pick-1 {
			continue
		}
		if err := s.deps.Tracker.Transition(ctx, key, s.deps.HaltTransition); err != nil {
			s.deps.Logger.Printf("halt %s for %s: %v", key, s.username, err)
			s.send("I couldn't update " + key + " in the issue tracker, leaving this open.")
			return
		}
		halted++
	}
	if err := s.deps.Store.DeactivateConflict(ctx, s.conflict.ID); err != nil {
		s.deps.Logger.Printf("deactivate conflict %s: %v", s.conflict.ID, err)
		return
	}
	s.conflict.Active = false
	s.send(fmt.Sprintf("Keeping %s in progress, put %d other ticket(s) on hold.", keep, halted))
}

func (s *Session) handleUnderAssigned(ctx context.Context, message string) {
	switch message {
	case "yes":
		if s.prevSuggestion == "" {
			return
		}
		if err := s.deps.Tracker.Transition(ctx, s.prevSuggestion, s.deps.ResumeTransition); err != nil {
			s.deps.Logger.Printf("resume %s for %s: %v", s.prevSuggestion, s.username, err)
			s.send("I couldn't update " + s.prevSuggestion + " in the issue tracker, leaving this open.")
			return
		}
		s.deactivateConflict(ctx)
		s.send(fmt.Sprintf("Resumed %s.", s.prevSuggestion))
	case "no", "resolve":
		s.deactivateConflict(ctx)
		s.send("Okay, consider it resolved.")
	}
}

func (s *Session) handleAfterHours(ctx context.Context, message string) {
	switch message {
	case "yes":
		for _, key := range s.conflict.TicketKeys {
			if err := s.deps.Tracker.Transition(ctx, key, s.deps.HaltTransition); err != nil {
				s.deps.Logger.Printf("halt %s for %s: %v", key, s.username, err)
				s.send("I couldn't update " + key + " in the issue tracker, leaving this open.")
				return
			}
		}
		count := len(s.conflict.TicketKeys)
		s.deactivateConflict(ctx)
		s.send(fmt.Sprintf("Moved %d ticket(s) to hold. Enjoy your time off.", count))
	case "no":
		s.deactivateConflict(ctx)
		s.send("Okay, leaving them in progress.")
	}
}

func (s *Session) deactivateConflict(ctx context.Context) {
	if err := s.deps.Store.DeactivateConflict(ctx, s.conflict.ID); err != nil {
		s.deps.Logger.Printf("deactivate conflict %s: %v", s.conflict.ID, err)
	}
	s.conflict.Active = false
}

func (s *Session) handleCommand(ctx context.Context, message string) {
	switch {
	case message == "help":
		s.send(helpFor(s.conflict))
	case message == "inactivate":
		s.user.Active = false
		if err := s.deps.Store.SaveUser(ctx, s.user); err != nil {
			s.deps.Logger.Printf("inactivate %s: %v", s.username, err)
			return
		}
		s.send("User deactivated")
	case message == "pause":
		s.pauseWork(ctx)
	case message == "resume":
		s.resumeWork(ctx)
	case getHoursPattern.MatchString(message):
		s.showHours()
	case getPeoplePattern.MatchString(message):
		s.showPeople(ctx)
	default:
		if match := setHoursPattern.FindStringSubmatch(message); match != nil {
			if start, end, ok := parseHoursRange(match); ok {
				s.user.WorkStart = start
				s.user.WorkEnd = end
				if err := s.deps.Store.SaveUser(ctx, s.user); err != nil {
					s.deps.Logger.Printf("set hours for %s: %v", s.username, err)
					return
				}
				s.send("Hours set")
			}
			return
		}
		if match := setLunchPattern.FindStringSubmatch(message); match != nil {
			if start, end, ok := parseHoursRange(match); ok {
				s.user.LunchStart = start
				s.user.LunchEnd = end
				if err := s.deps.Store.SaveUser(ctx, s.user); err != nil {
					s.deps.Logger.Printf("set lunch hours for %s: %v", s.username, err)
					return
				}
				s.send("Lunch hours set")
			}
			return
		}
	}
}

func (s *Session) pauseWork(ctx context.Context) {
	tickets, err := s.deps.Tracker.SearchInProgress(ctx, s.deps.Project, s.username)
	if err != nil {
		s.deps.Logger.Printf("pause: search for %s: %v", s.username, err)
		s.send("I couldn't reach the issue tracker, try again in a bit.")
		return
	}
	for _, t := range tickets {
		if err := s.deps.Tracker.Transition(ctx, t.Key, s.deps.HaltTransition); err != nil {
			s.deps.Logger.Printf("pause: halt %s for %s: %v", t.Key, s.username, err)
			s.send("I couldn't update " + t.Key + " in the issue tracker, stopping here.")
			return
		}
	}
	if len(tickets) > 0 {
		if err := s.deps.Store.UpsertPrevTicket(ctx, s.username, tickets[0].Key); err != nil {
			s.deps.Logger.Printf("pause: upsert prev ticket for %s: %v", s.username, err)
		}
	}
	if err := s.deps.Store.DeactivateUserConflicts(ctx, s.username); err != nil {
		s.deps.Logger.Printf("pause: deactivate conflicts for %s: %v", s.username, err)
	}
	if s.conflict != nil {
		s.conflict.Active = false
	}
	s.send(fmt.Sprintf("Paused %d ticket(s).", len(tickets)))
}

func (s *Session) resumeWork(ctx context.Context) {
	tickets, err := s.deps.Tracker.SearchInProgress(ctx, s.deps.Project, s.username)
	if err != nil {
		s.deps.Logger.Printf("resume: search for %s: %v", s.username, err)
		s.send("I couldn't reach the issue tracker, try again in a bit.")
		return
	}
	for _, t := range tickets {
		if err := s.deps.Tracker.Transition(ctx, t.Key, s.deps.HaltTransition); err != nil {
			s.deps.Logger.Printf("resume: halt %s for %s: %v", t.Key, s.username, err)
			s.send("I couldn't update " + t.Key + " in the issue tracker, stopping here.")
			return
		}
	}
	if err := s.deps.Store.DeactivateUserConflicts(ctx, s.username); err != nil {
		s.deps.Logger.Printf("resume: deactivate conflicts for %s: %v", s.username, err)
	}
	if s.conflict != nil {
		s.conflict.Active = false
	}

	prev, err := s.deps.Store.GetPrevTicket(ctx, s.username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.deps.Logger.Printf("resume: prev ticket for %s: %v", s.username, err)
		}
		s.send("No previous ticket on record.")
		return
	}
	if err := s.deps.Tracker.Transition(ctx, prev.TicketKey, s.deps.ResumeTransition); err != nil {
		s.deps.Logger.Printf("resume: %s for %s: %v", prev.TicketKey, s.username, err)
		s.send("I couldn't update " + prev.TicketKey + " in the issue tracker.")
		return
	}
	s.send(fmt.Sprintf("Resumed %s.", prev.TicketKey))
}

func (s *Session) showHours() {
	state := "Inactive"
	if s.user.Active {
		state = "Active"
	}
	s.send(fmt.Sprintf("%s\nWork hours -- %s - %s\nLunch hours -- %s - %s",
		state,
		s.user.WorkStart.Format12(), s.user.WorkEnd.Format12(),
		s.user.LunchStart.Format12(), s.user.LunchEnd.Format12()))
}

func (s *Session) showPeople(ctx context.Context) {
	users, err := s.deps.Store.ListUsers(ctx)
	if err != nil {
		s.deps.Logger.Printf("list users: %v", err)
		s.send("I couldn't read the team list, try again in a bit.")
		return
	}
	if len(users) == 0 {
		s.send("Nobody here yet.")
		return
	}
	var b strings.Builder
	for _, u := range users {
		state := "inactive"
		if u.Active {
			state = "active"
		}
		fmt.Fprintf(&b, "%s (%s) -- work %s - %s, lunch %s - %s\n",
			u.Username, state,
			u.WorkStart.Format12(), u.WorkEnd.Format12(),
			u.LunchStart.Format12(), u.LunchEnd.Format12())
	}
	s.send(strings.TrimRight(b.String(), "\n"))
}

func (s *Session) send(text string) {
	if s.channelID == "" {
		channelID, err := s.deps.Chat.ResolveDirectChannel(s.username)
		if err != nil {
			s.deps.Logger.Printf("resolve dm channel for %s: %v", s.username, err)
			return
		}
		s.channelID = channelID
	}
	if err := s.deps.Chat.SendMessage(s.channelID, text); err != nil {
		s.deps.Logger.Printf("send to %s: %v", s.username, err)
	}
}
