// File: session/session.go
// License: Apache-2.0

package session

import (
	"sort"
	"time"
)

// Session is one client's key/value state. It is valid only inside the
// callback of the item that handed it out.
type Session struct {
	id      string
	values  map[string]any
	created time.Time
	touched time.Time
	expiry  time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		id:      id,
		values:  make(map[string]any),
		created: now,
		touched: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Created returns the creation time.
func (s *Session) Created() time.Time { return s.created }

// Get fetches a value, returning (value, exists).
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set assigns a value.
func (s *Session) Set(key string, value any) { s.values[key] = value }

// Delete removes a key.
func (s *Session) Delete(key string) { delete(s.values, key) }

// Keys returns the keys in lexical order.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (s *Session) Len() int { return len(s.values) }

// Snapshot copies the values out of the session.
func (s *Session) Snapshot() map[string]any {
	cp := make(map[string]any, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return cp
}

func (s *Session) expired(now time.Time) bool {
	return !s.expiry.IsZero() && !now.Before(s.expiry)
}

func (s *Session) touch(now time.Time, ttl time.Duration) {
	s.touched = now
	if ttl > 0 {
		s.expiry = now.Add(ttl)
	}
}
