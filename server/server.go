// File: server/server.go
// License: Apache-2.0
//
// Server: owns the buffer provider, the processing units and the session
// store, and runs the accept loop.

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m9ra/ServeRick-sub001/client"
	"github.com/m9ra/ServeRick-sub001/control"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
	"github.com/m9ra/ServeRick-sub001/pool"
	"github.com/m9ra/ServeRick-sub001/session"
	"github.com/m9ra/ServeRick-sub001/transport"
	"github.com/m9ra/ServeRick-sub001/work"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrServerClosed   = errors.New("server closed")
)

// Server is an HTTP/1.1 server running requests as work chains.
type Server struct {
	cfg       *Config
	handler   Handler
	accessLog func(method, path string, status int, elapsed time.Duration)
	base      *logging.Logger
	log       *logging.Logger
	throttle  *logging.Throttle

	provider *pool.BufferProvider
	units    []*work.Unit
	nextUnit atomic.Uint64
	sessions *session.Store
	control  *control.Control

	mu       sync.Mutex
	acceptor *transport.Acceptor
	clients  map[*client.Client]struct{}
	running  bool
	closed   bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New builds the server. A nil cfg means DefaultConfig.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cp := *cfg
		cfg = &cp
	}
	s := &Server{
		cfg:       cfg,
		handler:   notFound,
		throttle:  logging.DefaultThrottle(),
		control:   control.New(),
		clients:   make(map[*client.Client]struct{}),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.log = logging.Component(s.base, "server")

	provider, err := pool.NewBufferProvider(cfg.BufferLength, cfg.MaxMemoryUsage,
		pool.WithPolicy(cfg.ExhaustionPolicy),
		pool.WithLogger(s.base),
	)
	if err != nil {
		return nil, err
	}
	s.provider = provider

	perUnit := 2
	for i := 0; i < cfg.Units; i++ {
		unitOpts := []work.UnitOption{work.WithUnitLogger(s.base)}
		if cfg.PinProcessors {
			unitOpts = append(unitOpts, work.WithPinning(i*perUnit))
		}
		s.units = append(s.units, work.NewUnit(fmt.Sprintf("unit%d", i), unitOpts...))
	}

	if cfg.SessionCookie != "" {
		s.sessions, err = session.NewStore(s.units[0].Output(),
			session.WithTTL(cfg.SessionTTL),
			session.WithLogger(s.base),
		)
		if err != nil {
			s.closeUnits()
			return nil, err
		}
	}

	s.registerProbes()
	return s, nil
}

// Config returns a copy of the effective configuration.
func (s *Server) Config() Config { return *s.cfg }

// Units returns the processing units.
func (s *Server) Units() []*work.Unit { return append([]*work.Unit(nil), s.units...) }

// Sessions returns the session store, nil when sessions are disabled.
func (s *Server) Sessions() *session.Store { return s.sessions }

// Control exposes runtime metrics and debug probes.
func (s *Server) Control() *control.Control { return s.control }

// Stats returns the merged metrics and probe snapshot.
func (s *Server) Stats() map[string]any { return s.control.Snapshot() }

func (s *Server) registerProbes() {
	s.control.Debug.RegisterProbe("pool", func() any { return s.provider.Stats() })
	s.control.Debug.RegisterProbe("units", func() any {
		out := make(map[string][]work.ProcessorStats, len(s.units))
		for _, u := range s.units {
			out[u.Name()] = u.Stats()
		}
		return out
	})
	s.control.Debug.RegisterProbe("clients", func() any {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients)
	})
	if s.sessions != nil {
		s.control.Debug.RegisterProbe("sessions", func() any { return s.sessions.Stats() })
	}
}

// pickUnit spreads connections over units round-robin.
func (s *Server) pickUnit() *work.Unit {
	n := s.nextUnit.Add(1) - 1
	return s.units[n%uint64(len(s.units))]
}

// ListenAndServe listens on cfg.ListenAddr and serves until ctx is done or
// Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := transport.Listen(ctx, s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is done or Shutdown is
// called. It does not tear the server down; call Shutdown for that.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	case s.running:
		s.mu.Unlock()
		_ = ln.Close()
		return ErrAlreadyRunning
	}
	s.running = true
	acc := transport.NewAcceptor(ln, func(conn net.Conn) { s.serveConn(ctx, conn) },
		transport.WithAcceptorLogger(s.base))
	s.acceptor = acc
	s.mu.Unlock()

	go s.sweepSessions()
	s.log.Info().Str("addr", ln.Addr().String()).Int("units", len(s.units)).Log("serving")
	return acc.Serve(ctx)
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

// sweepSessions evicts expired sessions every half TTL.
func (s *Server) sweepSessions() {
	defer close(s.sweepDone)
	if s.sessions == nil || s.cfg.SessionTTL <= 0 {
		<-s.stopSweep
		return
	}
	ticker := time.NewTicker(s.cfg.SessionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			chain := work.NewChain()
			if err := chain.AppendItem(s.sessions.Sweep()); err == nil {
				_ = chain.StartProcessing()
			}
		}
	}
}

func (s *Server) track(c *client.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *client.Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Shutdown stops accepting, lets every connection finish its queued
// responses and closes the units and the pool. When ctx ends first the
// remaining connections are closed hard and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	acc := s.acceptor
	running := s.running
	clients := make([]*client.Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if acc != nil {
		_ = acc.Close()
	}
	for _, c := range clients {
		c.CloseWhenIdle()
	}

	var err error
	if acc != nil {
		drained := make(chan struct{})
		go func() {
			acc.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			err = ctx.Err()
			s.mu.Lock()
			for c := range s.clients {
				_ = c.Close()
			}
			s.mu.Unlock()
			<-drained
		}
	}

	close(s.stopSweep)
	if running {
		<-s.sweepDone
	}
	s.closeUnits()
	s.provider.Close()
	s.log.Info().Log("shut down")
	return err
}

func (s *Server) closeUnits() {
	for _, u := range s.units {
		u.Close()
	}
}
