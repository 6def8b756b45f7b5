// Package memory is a process-local credential store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sgad.org/internal/auth"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[string]*auth.User
	byEmail map[string]string
	now     func() time.Time
}

var _ auth.CredentialStore = (*Store)(nil)

func New() *Store {
	return &Store{
		byID:    make(map[string]*auth.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// CreateUser stores a copy of u. An empty ID is replaced by a random UUID.
func (s *Store) CreateUser(_ context.Context, u *auth.User) (*auth.User, error) {
	if !u.Role.Valid() {
		return nil, fmt.Errorf("create user: invalid role %q", u.Role)
	}
	email := auth.NormalizeEmail(u.Email)
	if email == "" {
		return nil, fmt.Errorf("create user: email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return nil, auth.ErrEmailTaken
	}
	rec := clone(u)
	rec.Email = email
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.byID[rec.ID]; exists {
		return nil, fmt.Errorf("create user: id %s already exists", rec.ID)
	}
	now := s.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.byID[rec.ID] = rec
	s.byEmail[email] = rec.ID
	return clone(rec), nil
}

// SetActive toggles the active flag of id.
func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Active = active
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return clone(u), nil
}

func (s *Store) RecordLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	t := at.UTC()
	u.LastLoginAt = &t
	u.UpdatedAt = s.now().UTC()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func clone(u *auth.User) *auth.User {
	cp := *u
	if u.Referee != nil {
		ref := *u.Referee
		cp.Referee = &ref
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}
