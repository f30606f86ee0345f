package client_test

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m9ra/ServeRick-sub001/client"
	"github.com/m9ra/ServeRick-sub001/pool"
	"github.com/m9ra/ServeRick-sub001/work"
)

var errReset = errors.New("connection reset by peer")

// fakeConn acknowledges sends from a separate goroutine, like a socket
// writer would.
type fakeConn struct {
	buf *pool.DataBuffer

	mu      sync.Mutex
	out     bytes.Buffer
	chunks  int
	failAt  int
	onSend  func(chunk int)
	holders int

	closed atomic.Bool
	closes atomic.Int32
	done   chan struct{}
}

func newFakeConn(t *testing.T, bufferLength int) *fakeConn {
	t.Helper()
	provider, err := pool.NewBufferProvider(bufferLength, bufferLength*4)
	require.NoError(t, err)
	buf, err := provider.GetBuffer()
	require.NoError(t, err)
	return &fakeConn{buf: buf, done: make(chan struct{})}
}

func (f *fakeConn) Acquire() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		return nil
	}
	f.holders++
	return f.buf.Bytes()
}

func (f *fakeConn) Release() {
	f.mu.Lock()
	f.holders--
	last := f.holders == 0 && f.closed.Load()
	f.mu.Unlock()
	if last {
		_ = f.buf.Recycle()
	}
}

func (f *fakeConn) Send(p []byte, n int, onSent func(error)) {
	f.mu.Lock()
	f.chunks++
	chunk := f.chunks
	fail := f.failAt > 0 && chunk == f.failAt
	if !fail {
		f.out.Write(p[:n])
	}
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(chunk)
	}
	go func() {
		if fail {
			onSent(errReset)
			return
		}
		onSent(nil)
	}()
}

func (f *fakeConn) Closed() bool { return f.closed.Load() }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	first := f.closed.CompareAndSwap(false, true)
	idle := f.holders == 0
	f.mu.Unlock()
	if first {
		f.closes.Add(1)
		if idle {
			_ = f.buf.Recycle()
		}
		close(f.done)
	}
	return nil
}

func (f *fakeConn) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

func (f *fakeConn) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks
}

func newUnit(t *testing.T) *work.Unit {
	t.Helper()
	u := work.NewUnit(t.Name())
	t.Cleanup(u.Close)
	return u
}

// trackedSource counts releases of the wrapped source.
type trackedSource struct {
	client.DataSource
	released atomic.Int32
}

func (s *trackedSource) Release() {
	s.released.Add(1)
	s.DataSource.Release()
}

type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.items = append(r.items, s)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}
