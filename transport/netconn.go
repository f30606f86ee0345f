// File: transport/netconn.go
// License: Apache-2.0
//
// NetConn: pool-backed connection whose writes complete through callbacks
// issued by a dedicated sender goroutine.

package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/internal/concurrency"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
	"github.com/m9ra/ServeRick-sub001/pool"
)

// ConnOption configures a NetConn.
type ConnOption func(*NetConn)

// WithWriteTimeout bounds every write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(c *NetConn) { c.writeTimeout = d }
}

// WithConnLogger attaches a logger.
func WithConnLogger(l *logging.Logger) ConnOption {
	return func(c *NetConn) { c.log = logging.Component(l, "netconn") }
}

type sendReq struct {
	p      []byte
	onSent func(error)
}

// NetConn owns one leased buffer for its whole life.
type NetConn struct {
	conn         net.Conn
	buf          *pool.DataBuffer
	writeTimeout time.Duration
	log          *logging.Logger

	mu       sync.Mutex
	pending  *concurrency.FIFO[sendReq]
	closed   atomic.Bool
	holders  int
	stopped  bool
	recycled bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	bytesSent atomic.Uint64
}

// Open leases a buffer from provider and starts the sender. When the pool is
// exhausted the error carries api.ErrResourceExhausted and conn is left open
// for the caller to shed.
func Open(conn net.Conn, provider *pool.BufferProvider, opts ...ConnOption) (*NetConn, error) {
	return OpenContext(context.Background(), conn, provider, opts...)
}

// OpenContext is Open with ctx bounding the wait of a blocking pool.
func OpenContext(ctx context.Context, conn net.Conn, provider *pool.BufferProvider, opts ...ConnOption) (*NetConn, error) {
	buf, err := provider.GetBufferContext(ctx)
	if err != nil {
		return nil, err
	}
	c := &NetConn{
		conn:    conn,
		buf:     buf,
		pending: concurrency.NewFIFO[sendReq](),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.sender()
	return c, nil
}

// Buffer returns the leased output buffer handle.
func (c *NetConn) Buffer() *pool.DataBuffer { return c.buf }

// Acquire pins the output buffer and returns its storage, or nil once the
// connection is closed. Each non-nil result must be paired with Release.
func (c *NetConn) Acquire() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil
	}
	c.holders++
	return c.buf.Bytes()
}

// Release drops a pin taken by Acquire. The last Release after Close hands
// the buffer back to the pool.
func (c *NetConn) Release() {
	c.mu.Lock()
	if c.holders > 0 {
		c.holders--
	}
	c.mu.Unlock()
	c.recycle()
}

// recycle returns the buffer once the sender has stopped and nobody holds it.
// Done is closed right after.
func (c *NetConn) recycle() {
	c.mu.Lock()
	if !c.stopped || c.holders > 0 || c.recycled {
		c.mu.Unlock()
		return
	}
	c.recycled = true
	c.mu.Unlock()

	if err := c.buf.Recycle(); err != nil {
		c.log.Warning().Err(err).Log("output buffer recycle failed")
	}
	close(c.done)
}

// Raw returns the underlying connection for reading.
func (c *NetConn) Raw() net.Conn { return c.conn }

// BytesSent returns the number of bytes written so far.
func (c *NetConn) BytesSent() uint64 { return c.bytesSent.Load() }

// Send queues p[:n] for the sender goroutine. onSent runs on that goroutine,
// or on the caller's when the connection is already closed. Sends queued when
// the connection closes are reported as failed.
func (c *NetConn) Send(p []byte, n int, onSent func(error)) {
	if n < 0 || n > len(p) {
		onSent(api.ProtocolViolation(api.ErrInvalidArgument).WithContext("n", n))
		return
	}
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		onSent(closedErr())
		return
	}
	c.pending.Push(sendReq{p: p[:n], onSent: onSent})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *NetConn) sender() {
	defer func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		c.recycle()
	}()
	for {
		c.mu.Lock()
		if c.closed.Load() {
			rest := c.pending.Drain()
			c.mu.Unlock()
			for _, req := range rest {
				req.onSent(closedErr())
			}
			return
		}
		req, ok := c.pending.Pop()
		c.mu.Unlock()

		if ok {
			req.onSent(c.write(req.p))
			continue
		}
		select {
		case <-c.wake:
		case <-c.quit:
		}
	}
}

func (c *NetConn) write(p []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	n, err := c.conn.Write(p)
	c.bytesSent.Add(uint64(n))
	return err
}

// Closed reports whether Close has been called.
func (c *NetConn) Closed() bool { return c.closed.Load() }

// Close closes the connection and stops the sender. The buffer is recycled
// once the sender has exited and every Acquire has been released. Close is
// idempotent and safe from send callbacks.
func (c *NetConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed.Store(true)
		c.mu.Unlock()
		close(c.quit)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Done is closed once the sender has exited and the buffer is back in the
// pool.
func (c *NetConn) Done() <-chan struct{} { return c.done }

func closedErr() error {
	return api.Wrap(api.ErrCodeClosed, api.ErrClientClosed, "send")
}
