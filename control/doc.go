// Package control
// License: Apache-2.0
//
// Runtime metrics and debug introspection. Components publish counters into
// a MetricsRegistry and register probes that are evaluated on demand; the
// server exposes both as one snapshot.
package control
