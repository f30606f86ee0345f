// File: server/options.go
// Package server defines functional options for the Server.
// License: Apache-2.0

package server

import (
	"time"

	"github.com/m9ra/ServeRick-sub001/internal/logging"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the structured logger shared by every component.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.base = l
	}
}

// WithHandler sets the request handler. Without one every request gets 404.
func WithHandler(h Handler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithAccessLog registers a hook called once per rendered response.
func WithAccessLog(fn func(method, path string, status int, elapsed time.Duration)) Option {
	return func(s *Server) {
		s.accessLog = fn
	}
}

// WithConfig mutates the configuration before it is validated.
func WithConfig(fn func(*Config)) Option {
	return func(s *Server) {
		fn(s.cfg)
	}
}
