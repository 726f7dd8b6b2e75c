// Package memory is an in-process Repository for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"budgetly/internal/core"
	"budgetly/internal/storage"

	"github.com/google/uuid"
)

type Store struct {
	mu    sync.Mutex
	creds map[string]storage.Credentials // lowercased email
	users map[string]core.User
	items map[string]item
	seq   int64
}

// item remembers insertion order so equal CreatedAt values sort stably.
type item struct {
	expense core.Expense
	seq     int64
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		creds: make(map[string]storage.Credentials),
		users: make(map[string]core.User),
		items: make(map[string]item),
	}
}

func (s *Store) CreateCredentials(_ context.Context, c storage.Credentials) error {
	key := strings.ToLower(strings.TrimSpace(c.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[key]; ok {
		return storage.ErrConflict
	}
	for _, existing := range s.creds {
		if existing.UserID == c.UserID {
			return storage.ErrConflict
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.Email = strings.TrimSpace(c.Email)
	s.creds[key] = c
	return nil
}

func (s *Store) FindCredentials(_ context.Context, email string) (storage.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return storage.Credentials{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return storage.ErrConflict
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UpdateBudget(_ context.Context, userID string, budget float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.Budget = budget
	s.users[userID] = u
	return nil
}

func (s *Store) ListExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	matched := make([]item, 0, len(s.items))
	for _, it := range s.items {
		if it.expense.UserID == userID {
			matched = append(matched, it)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.expense.CreatedAt.Equal(b.expense.CreatedAt) {
			return a.expense.CreatedAt.After(b.expense.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]core.Expense, len(matched))
	for i, it := range matched {
		out[i] = it.expense
	}
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return core.Expense{}, storage.ErrNotFound
	}
	return it.expense, nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.ID]; ok {
		return "", storage.ErrConflict
	}
	s.seq++
	s.items[e.ID] = item{expense: e, seq: s.seq}
	return e.ID, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.expense.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
