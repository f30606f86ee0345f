// File: server/types.go
// License: Apache-2.0

package server

import (
	"fmt"
	"time"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/internal/concurrency"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
	"github.com/m9ra/ServeRick-sub001/pool"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr       string                // TCP bind address, e.g. ":8080"
	BufferLength     int                   // size of each connection's output buffer
	MaxMemoryUsage   int                   // ceiling for all output buffers together
	ExhaustionPolicy pool.ExhaustionPolicy // what a connection does when the ceiling is hit
	Units            int                   // number of processing units
	PinProcessors    bool                  // pin processor threads to successive CPUs
	ReadTimeout      time.Duration         // per-request read deadline, 0 disables
	WriteTimeout     time.Duration         // per-write deadline, 0 disables
	ShutdownTimeout  time.Duration         // graceful shutdown budget used by the CLI
	MaxBodyBytes     int64                 // request bodies above this are refused
	SessionTTL       time.Duration         // sliding session lifetime, 0 keeps forever
	SessionCookie    string                // cookie carrying the session id, "" disables sessions
	LogLevel         string                // minimal log level
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	units := concurrency.NumCPUs() / 2
	if units < 1 {
		units = 1
	}
	return &Config{
		ListenAddr:       ":8080",
		BufferLength:     16 * 1024,
		MaxMemoryUsage:   64 * 1024 * 1024,
		ExhaustionPolicy: pool.PolicyReject,
		Units:            units,
		PinProcessors:    false,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		MaxBodyBytes:     1 << 20,
		SessionTTL:       30 * time.Minute,
		SessionCookie:    "SRSESSID",
		LogLevel:         "info",
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.BufferLength <= 0:
		return invalid("buffer length must be positive, got %d", c.BufferLength)
	case c.MaxMemoryUsage < c.BufferLength:
		return invalid("memory ceiling %d is below one buffer of %d", c.MaxMemoryUsage, c.BufferLength)
	case c.Units <= 0:
		return invalid("at least one processing unit is required, got %d", c.Units)
	case c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 || c.SessionTTL < 0:
		return invalid("timeouts must not be negative")
	case c.MaxBodyBytes < 0:
		return invalid("max body bytes must not be negative, got %d", c.MaxBodyBytes)
	}
	if c.ExhaustionPolicy != pool.PolicyReject && c.ExhaustionPolicy != pool.PolicyBlock {
		return invalid("unknown exhaustion policy %d", int(c.ExhaustionPolicy))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{api.ErrInvalidArgument}, args...)...)
}
