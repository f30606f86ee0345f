// File: session/store.go
// License: Apache-2.0
//
// Store and the items that reach it.

package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
	"github.com/m9ra/ServeRick-sub001/work"
)

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the sliding lifetime. Zero keeps sessions until deleted.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.log = logging.Component(l, "session") }
}

// Stats holds store counters.
type Stats struct {
	Live    int64
	Created uint64
	Expired uint64
}

// Store maps session IDs to sessions for one owner processor.
type Store struct {
	owner    *work.Processor
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	log      *logging.Logger

	live    atomic.Int64
	created atomic.Uint64
	expired atomic.Uint64
}

// NewStore returns a store owned by owner.
func NewStore(owner *work.Processor, opts ...Option) (*Store, error) {
	if owner == nil {
		return nil, fmt.Errorf("%w: session store without owner", api.ErrInvalidArgument)
	}
	s := &Store{
		owner:    owner,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// NewID returns a fresh random session identifier.
func NewID() string { return uuid.NewString() }

// Owner returns the processor the store belongs to.
func (s *Store) Owner() *work.Processor { return s.owner }

// TTL returns the sliding lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Stats may be called from any goroutine.
func (s *Store) Stats() Stats {
	return Stats{
		Live:    s.live.Load(),
		Created: s.created.Load(),
		Expired: s.expired.Load(),
	}
}

func (s *Store) guard(ctx context.Context) error {
	if p, ok := work.ProcessorFromContext(ctx); !ok || p != s.owner {
		return api.ProtocolViolation(api.ErrWrongProcessor).WithContext("owner", s.owner.Name())
	}
	return nil
}

// lookup returns the live session for id, evicting it when expired.
func (s *Store) lookup(id string, now time.Time) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if sess.expired(now) {
		s.evict(id)
		return nil
	}
	return sess
}

func (s *Store) evict(id string) {
	delete(s.sessions, id)
	s.live.Add(-1)
	s.expired.Add(1)
}

// Mutate returns an item that runs fn on the session id, creating it when
// absent and refreshing its expiry.
func (s *Store) Mutate(id string, fn func(*Session)) *MutationItem {
	it := &MutationItem{store: s, id: id, fn: fn}
	it.SetPlannedProcessor(s.owner)
	return it
}

// View returns an item that runs fn on the session id, or on nil when there
// is no live session. Expiry is not refreshed.
func (s *Store) View(id string, fn func(*Session)) *ViewItem {
	it := &ViewItem{store: s, id: id, fn: fn}
	it.SetPlannedProcessor(s.owner)
	return it
}

// Destroy returns an item that removes the session id.
func (s *Store) Destroy(id string) *DestroyItem {
	it := &DestroyItem{store: s, id: id}
	it.SetPlannedProcessor(s.owner)
	return it
}

// Sweep returns an item that evicts every expired session.
func (s *Store) Sweep() *SweepItem {
	it := &SweepItem{store: s}
	it.SetPlannedProcessor(s.owner)
	return it
}

// MutationItem creates or updates a session.
type MutationItem struct {
	work.ItemBase
	store *Store
	id    string
	fn    func(*Session)
}

func (it *MutationItem) Run(ctx context.Context) error {
	s := it.store
	if err := s.guard(ctx); err != nil {
		return err
	}
	now := s.now()
	sess := s.lookup(it.id, now)
	if sess == nil {
		sess = newSession(it.id, now)
		s.sessions[it.id] = sess
		s.live.Add(1)
		s.created.Add(1)
	}
	sess.touch(now, s.ttl)
	if it.fn != nil {
		it.fn(sess)
	}
	return it.Complete()
}

// ViewItem reads a session.
type ViewItem struct {
	work.ItemBase
	store *Store
	id    string
	fn    func(*Session)
}

func (it *ViewItem) Run(ctx context.Context) error {
	s := it.store
	if err := s.guard(ctx); err != nil {
		return err
	}
	sess := s.lookup(it.id, s.now())
	if it.fn != nil {
		it.fn(sess)
	}
	return it.Complete()
}

// DestroyItem deletes a session.
type DestroyItem struct {
	work.ItemBase
	store *Store
	id    string
}

func (it *DestroyItem) Run(ctx context.Context) error {
	s := it.store
	if err := s.guard(ctx); err != nil {
		return err
	}
	if _, ok := s.sessions[it.id]; ok {
		delete(s.sessions, it.id)
		s.live.Add(-1)
	}
	return it.Complete()
}

// SweepItem evicts expired sessions.
type SweepItem struct {
	work.ItemBase
	store   *Store
	removed int
}

// Removed returns the number of sessions evicted by the run.
func (it *SweepItem) Removed() int { return it.removed }

func (it *SweepItem) Run(ctx context.Context) error {
	s := it.store
	if err := s.guard(ctx); err != nil {
		return err
	}
	now := s.now()
	for id, sess := range s.sessions {
		if sess.expired(now) {
			s.evict(id)
			it.removed++
		}
	}
	if it.removed > 0 {
		s.log.Debug().Int("removed", it.removed).Int64("live", s.live.Load()).Log("sessions swept")
	}
	return it.Complete()
}
