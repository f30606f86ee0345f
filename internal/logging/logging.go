// File: internal/logging/logging.go
// Package logging
// License: Apache-2.0
//
// Structured JSON logging shared by all components. A nil *Logger is valid
// and discards everything.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the generic logiface logger passed between packages.
type Logger = logiface.Logger[logiface.Event]

// New builds a stumpy-backed logger writing JSON lines to w (stderr if nil).
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField("ts"),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Component returns a sub-logger tagging every event with component=name.
func Component(l *Logger, name string) *Logger {
	if l == nil {
		return nil
	}
	return l.Clone().Str("component", name).Logger()
}

// ParseLevel maps a level name onto a logiface.Level.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "informational":
		return logiface.LevelInformational, nil
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "off", "disabled", "none":
		return logiface.LevelDisabled, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
}

// Throttle rate limits log events per category.
type Throttle struct {
	limiter *catrate.Limiter
}

// NewThrottle allows perSecond events per second and perMinute per minute,
// for each category.
func NewThrottle(perSecond, perMinute int) *Throttle {
	return &Throttle{limiter: catrate.NewLimiter(map[time.Duration]int{
		time.Second: perSecond,
		time.Minute: perMinute,
	})}
}

// DefaultThrottle is the policy used for flood-prone warnings.
func DefaultThrottle() *Throttle { return NewThrottle(5, 60) }

// Allow reports whether an event in category may be logged now.
func (t *Throttle) Allow(category any) bool {
	if t == nil {
		return true
	}
	_, ok := t.limiter.Allow(category)
	return ok
}
