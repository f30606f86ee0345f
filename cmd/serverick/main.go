// File: cmd/serverick/main.go
// Package main
// License: Apache-2.0
//
// serverick runs the HTTP server with a small demo site: a greeting, a
// session-backed visit counter, a persisted guestbook and a stats page.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/m9ra/ServeRick-sub001/internal/logging"
	"github.com/m9ra/ServeRick-sub001/pool"
	"github.com/m9ra/ServeRick-sub001/server"
)

func main() {
	def := server.DefaultConfig()
	addr := flag.String("addr", def.ListenAddr, "listen address")
	units := flag.Int("units", def.Units, "number of processing units")
	pin := flag.Bool("pin", def.PinProcessors, "pin processor threads to CPUs")
	bufLen := flag.Int("buffer", def.BufferLength, "output buffer length in bytes")
	maxMem := flag.Int("max-memory", def.MaxMemoryUsage, "ceiling for all output buffers in bytes")
	policy := flag.String("exhaustion", def.ExhaustionPolicy.String(), "pool exhaustion policy: reject or block")
	readTimeout := flag.Duration("read-timeout", def.ReadTimeout, "per-request read deadline")
	writeTimeout := flag.Duration("write-timeout", def.WriteTimeout, "per-write deadline")
	shutdownTimeout := flag.Duration("shutdown-timeout", def.ShutdownTimeout, "graceful shutdown budget")
	sessionTTL := flag.Duration("session-ttl", def.SessionTTL, "sliding session lifetime")
	level := flag.String("log-level", def.LogLevel, "log level")
	accessLog := flag.Bool("access-log", false, "print a colored access log to stdout")
	flag.Parse()

	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		log.Fatalf("invalid -log-level: %v", err)
	}
	exhaustion, err := pool.ParseExhaustionPolicy(*policy)
	if err != nil {
		log.Fatalf("invalid -exhaustion: %v", err)
	}

	cfg := server.DefaultConfig()
	cfg.ListenAddr = *addr
	cfg.Units = *units
	cfg.PinProcessors = *pin
	cfg.BufferLength = *bufLen
	cfg.MaxMemoryUsage = *maxMem
	cfg.ExhaustionPolicy = exhaustion
	cfg.ReadTimeout = *readTimeout
	cfg.WriteTimeout = *writeTimeout
	cfg.ShutdownTimeout = *shutdownTimeout
	cfg.SessionTTL = *sessionTTL
	cfg.LogLevel = *level

	logger := logging.New(os.Stderr, lvl)
	site := newSite()
	opts := []server.Option{server.WithLogger(logger), server.WithHandler(site)}
	if *accessLog {
		opts = append(opts, server.WithAccessLog(printAccess))
	}

	srv, err := server.New(cfg, opts...)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	site.stats = srv.Stats

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(color.CyanString("serverick listening on %s (%d units)", cfg.ListenAddr, cfg.Units))
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
		logger.Err().Err(err).Log("serve failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warning().Err(err).Log("shutdown incomplete")
		os.Exit(1)
	}
}

// printAccess logs one response with a color-coded status.
func printAccess(method, path string, status int, elapsed time.Duration) {
	line := fmt.Sprintf("%s %s %d %s", method, path, status, elapsed.Round(time.Microsecond))
	switch {
	case status >= 500:
		fmt.Println(color.RedString("%s", line))
	case status >= 400:
		fmt.Println(color.YellowString("%s", line))
	default:
		fmt.Println(color.GreenString("%s", line))
	}
}
