// File: client/client.go
// License: Apache-2.0
//
// Client: per-connection outer queue of client items. One chain runs at a
// time; completion advances to the next queued item, abort fails the client.

package client

import (
	"sync"
	"sync/atomic"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/internal/concurrency"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
	"github.com/m9ra/ServeRick-sub001/work"
)

// Option configures a Client.
type Option func(*Client)

// WithOnFailure registers fn, called once when a chain of the client aborts.
// A deliberate Close does not report.
func WithOnFailure(fn func(error)) Option {
	return func(c *Client) { c.onFailure = fn }
}

// WithOnIdle registers fn, called whenever the outer queue drains.
func WithOnIdle(fn func()) Option {
	return func(c *Client) { c.onIdle = fn }
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.log = logging.Component(l, "client") }
}

// Client serializes the chains of one connection.
type Client struct {
	conn Conn
	unit *work.Unit

	mu          sync.Mutex
	queue       *concurrency.FIFO[ClientItem]
	active      *work.Chain
	closed      bool
	closeOnIdle bool
	err         error

	onFailure func(error)
	onIdle    func()
	log       *logging.Logger
	throttle  *logging.Throttle

	served atomic.Uint64
}

// New binds conn to unit.
func New(conn Conn, unit *work.Unit, opts ...Option) *Client {
	c := &Client{
		conn:     conn,
		unit:     unit,
		queue:    concurrency.NewFIFO[ClientItem](),
		throttle: logging.DefaultThrottle(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Conn returns the client's connection.
func (c *Client) Conn() Conn { return c.conn }

// Unit returns the unit the client's items are routed through.
func (c *Client) Unit() *work.Unit { return c.unit }

// Err returns the failure that aborted the client, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pending returns the number of items waiting behind the active chain.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Served returns the number of chains completed while the client was open.
func (c *Client) Served() uint64 { return c.served.Load() }

// Enqueue binds item to c and schedules it. The item starts at once when the
// client is idle, otherwise after every item queued before it.
func (c *Client) Enqueue(item ClientItem) error {
	if item == nil {
		return api.ProtocolViolation(api.ErrInvalidArgument).WithContext("op", "enqueue nil item")
	}
	if err := item.BindClient(c); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.closeOnIdle || c.err != nil {
		c.mu.Unlock()
		item.Abort()
		return api.Wrap(api.ErrCodeClosed, api.ErrClientClosed, "enqueue")
	}
	if c.active != nil {
		c.queue.Push(item)
		c.mu.Unlock()
		return nil
	}
	chain := c.chainLocked(item)
	c.mu.Unlock()

	return chain.StartProcessing()
}

// chainLocked creates the chain headed by item and makes it active.
func (c *Client) chainLocked(item ClientItem) *work.Chain {
	chain := work.NewChain(
		work.WithOnComplete(c.advance),
		work.WithOnAbort(c.fail),
	)
	// item is fresh: bound to no chain yet
	_ = chain.AppendItem(item)
	c.active = chain
	return chain
}

// advance runs on completion of the active chain. A chain that settles after
// the client failed or closed only clears the active slot.
func (c *Client) advance() {
	c.mu.Lock()
	c.active = nil
	if c.closed || c.err != nil {
		c.mu.Unlock()
		return
	}
	c.served.Add(1)
	next, ok := c.queue.Pop()
	if !ok {
		closeNow := c.closeOnIdle
		onIdle := c.onIdle
		c.mu.Unlock()
		if onIdle != nil {
			onIdle()
		}
		if closeNow {
			_ = c.Close()
		}
		return
	}
	chain := c.chainLocked(next)
	c.mu.Unlock()

	// a dispatch failure aborts the chain and lands in fail
	_ = chain.StartProcessing()
}

// fail runs when the active chain aborts.
func (c *Client) fail(cause error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = cause
	c.active = nil
	pending := c.queue.Drain()
	deliberate := c.closed
	c.closed = true
	onFailure := c.onFailure
	c.mu.Unlock()

	for _, it := range pending {
		it.Abort()
	}
	_ = c.conn.Close()

	if deliberate {
		return
	}
	if c.throttle.Allow("client-failure") {
		c.log.Warning().Err(cause).Int("dropped", len(pending)).Log("client chain aborted")
	}
	if onFailure != nil {
		onFailure(cause)
	}
}

// CloseWhenIdle refuses new items and closes the client once every queued
// item has completed.
func (c *Client) CloseWhenIdle() {
	c.mu.Lock()
	idle := c.active == nil && c.queue.Len() == 0
	c.closeOnIdle = true
	c.mu.Unlock()
	if idle {
		_ = c.Close()
	}
}

// CloseAfterActive drops every queued item, refuses new ones and closes the
// client once the active chain completes.
func (c *Client) CloseAfterActive() {
	c.mu.Lock()
	c.closeOnIdle = true
	pending := c.queue.Drain()
	idle := c.active == nil
	c.mu.Unlock()

	for _, it := range pending {
		it.Abort()
	}
	if idle {
		_ = c.Close()
	}
}

// Closing reports whether the client refuses new items, either closed or
// waiting to close.
func (c *Client) Closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.closeOnIdle || c.err != nil
}

// Close aborts the active chain and every queued item, then closes the
// connection. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	active := c.active
	pending := c.queue.Drain()
	c.mu.Unlock()

	for _, it := range pending {
		it.Abort()
	}
	if active != nil {
		active.Abort()
	}
	return c.conn.Close()
}

// Closed reports whether the client stopped accepting items.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
