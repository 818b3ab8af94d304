// Package session
// Author: momentics <momentics@gmail.com>
//
// Thread-safe key/value store for per-connection application state.

package session

import (
	"sync"
	"time"
)

type entry struct {
	val    any
	expiry time.Time
}

// Store holds values set by route handlers and listeners, e.g. the user bound
// to a connection after login.
type Store struct {
	mu    sync.RWMutex
	store map[string]entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		store: make(map[string]entry),
	}
}

// Set stores a value without expiry.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = entry{val: value}
}

// Get retrieves a value and its existence. Expired keys are reported missing.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.store[key]
	if !ok || (!e.expiry.IsZero() && time.Now().After(e.expiry)) {
		return nil, false
	}
	return e.val, true
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
}

// WithExpiration sets a TTL on an existing key.
func (s *Store) WithExpiration(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.store[key]; ok {
		e.expiry = time.Now().Add(ttl)
		s.store[key] = e
	}
}

// Keys returns all non-expired keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0, len(s.store))
	for k, e := range s.store {
		if e.expiry.IsZero() || now.Before(e.expiry) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone returns a shallow copy.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(map[string]entry, len(s.store))
	for k, v := range s.store {
		cp[k] = v
	}
	return &Store{store: cp}
}
