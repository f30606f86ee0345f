// File: client/conn.go
// License: Apache-2.0

package client

// Conn is the network side of a client. Send must not block the caller: it
// hands p[:n] off and reports the outcome through onSent, from any goroutine.
//
// Acquire pins the connection's output buffer and returns it, or nil once the
// connection is closed. Every non-nil Acquire is paired with one Release; the
// buffer goes back to the pool only after Close and the last Release. Close
// must be idempotent.
type Conn interface {
	Acquire() []byte
	Release()
	Send(p []byte, n int, onSent func(error))
	Closed() bool
	Close() error
}
