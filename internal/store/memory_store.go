package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gudTECH/nag-bot/internal/ids"
)

type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]User
	conflicts   []Conflict
	prevTickets map[string]PrevTicket
	closed      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]User),
		prevTickets: make(map[string]PrevTicket),
	}
}

func (s *MemoryStore) GetOrCreateUser(_ context.Context, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return User{}, fmt.Errorf("memory store is closed")
	}

	if existing, ok := s.users[username]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	rec := DefaultUser(username)
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.users[username] = rec
	return rec, nil
}

func (s *MemoryStore) SaveUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}

	user.UpdatedAt = time.Now().UTC()
	s.users[user.Username] = user
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	return s.listUsers(false)
}

func (s *MemoryStore) ListActiveUsers(_ context.Context) ([]User, error) {
	return s.listUsers(true)
}

func (s *MemoryStore) listUsers(activeOnly bool) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	out := make([]User, 0, len(s.users))
	for _, user := range s.users {
		if activeOnly && !user.Active {
			continue
		}
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) CreateConflict(_ context.Context, username string, kind ConflictKind, ticketKeys []string) (Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Conflict{}, fmt.Errorf("memory store is closed")
	}

	now := time.Now().UTC()
	rec := Conflict{
		ID:         ids.New(),
		Username:   username,
		Kind:       kind,
		TicketKeys: append([]string(nil), ticketKeys...),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.conflicts = append(s.conflicts, rec)
	return rec, nil
}

func (s *MemoryStore) ActiveConflicts(_ context.Context, username string) ([]Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	var out []Conflict
	for _, c := range s.conflicts {
		if c.Username == username && c.Active {
			c.TicketKeys = append([]string(nil), c.TicketKeys...)
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeactivateConflict(_ context.Context, conflictID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}

	for i := range s.conflicts {
		if s.conflicts[i].ID == conflictID {
			s.conflicts[i].Active = false
			s.conflicts[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeactivateUserConflicts(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}

	now := time.Now().UTC()
	for i := range s.conflicts {
		if s.conflicts[i].Username == username && s.conflicts[i].Active {
			s.conflicts[i].Active = false
			s.conflicts[i].UpdatedAt = now
		}
	}
	return nil
}

func (s *MemoryStore) UpsertPrevTicket(_ context.Context, username, ticketKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}

	s.prevTickets[username] = PrevTicket{
		Username:  username,
		TicketKey: ticketKey,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) GetPrevTicket(_ context.Context, username string) (PrevTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PrevTicket{}, fmt.Errorf("memory store is closed")
	}

	rec, ok := s.prevTickets[username]
	if !ok {
		return PrevTicket{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
