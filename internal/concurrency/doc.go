// File: internal/concurrency/doc.go
// License: Apache-2.0
//
// Low-level primitives behind the work processors: an unbounded FIFO backed by
// github.com/eapache/queue, and OS-thread locking with optional CPU pinning
// (sched_setaffinity via golang.org/x/sys/unix on Linux).
package concurrency
