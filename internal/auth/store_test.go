package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeStore is an in-package CredentialStore for tests.
type fakeStore struct {
	mu        sync.Mutex
	byID      map[string]*User
	findErr   error
	recordErr error
	logins    map[string]time.Time
}

func newFakeStore(users ...*User) *fakeStore {
	s := &fakeStore{byID: map[string]*User{}, logins: map[string]time.Time{}}
	for _, u := range users {
		s.byID[u.ID] = u
	}
	return s
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	if _, ok := s.byID[id]; !ok {
		return ErrUserNotFound
	}
	s.logins[id] = at
	return nil
}

func (s *fakeStore) update(id string, fn func(*User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.byID[id])
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

var errStoreDown = errors.New("connection refused")
