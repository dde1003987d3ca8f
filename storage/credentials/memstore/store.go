// Package memstore is a process-local credential store. Nothing survives a restart.
package memstore

import (
	"context"
	"sync"

	"github.com/eduweave/eduweave/core/session"
)

type Store struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ session.CredentialStore = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string]string)}
}

func (s *Store) GetItem(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return "", session.ErrItemNotFound
	}
	return v, nil
}

func (s *Store) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}
