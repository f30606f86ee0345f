// File: server/doc.go
// Package server
// License: Apache-2.0
//
// HTTP/1.1 server driven by the work scheduler. Every accepted connection
// leases one output buffer and becomes a client of a processing unit picked
// round-robin; every parsed request becomes one chain of work items: session
// lookup, render, session update, persistence, write. Connections that find
// the pool exhausted are shed with a 503.
package server
