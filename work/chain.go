// File: work/chain.go
// License: Apache-2.0
//
// Chain: ordered items kept in an index-linked arena with two movable
// markers, the insertion cursor and the processed (in-flight) pointer.

package work

import (
	"fmt"
	"sync"

	"github.com/m9ra/ServeRick-sub001/api"
)

// ChainState is the lifecycle state of a Chain.
type ChainState int32

const (
	ChainBuilding ChainState = iota
	ChainProcessing
	ChainComplete
	ChainAborted
)

func (s ChainState) String() string {
	switch s {
	case ChainBuilding:
		return "building"
	case ChainProcessing:
		return "processing"
	case ChainComplete:
		return "complete"
	case ChainAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// sentinel is the arena slot acting as list head; a next of sentinel means
// end of list.
const sentinel = 0

type entry struct {
	item Item
	next int
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithOnComplete registers the callback fired once when the last item
// completes.
func WithOnComplete(fn func()) ChainOption {
	return func(c *Chain) { c.onDone = fn }
}

// WithOnAbort registers the callback fired once when the chain is aborted,
// with the abort cause.
func WithOnAbort(fn func(error)) ChainOption {
	return func(c *Chain) { c.onAbort = fn }
}

// Chain executes its items strictly in list order. At most one item is in
// flight at any instant.
type Chain struct {
	mu        sync.Mutex
	entries   []entry
	tail      int
	cursor    int
	processed int
	state     ChainState
	err       error

	onDone  func()
	onAbort func(error)
}

// NewChain returns an empty chain in the Building state.
func NewChain(opts ...ChainOption) *Chain {
	c := &Chain{entries: make([]entry, 1, 8)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Chain) State() ChainState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the abort cause, if any.
func (c *Chain) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Len returns the number of items ever added.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) - 1
}

// Current returns the in-flight item, or nil outside Processing.
func (c *Chain) Current() Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ChainProcessing || c.processed == sentinel {
		return nil
	}
	return c.entries[c.processed].item
}

// Items returns the items in execution order.
func (c *Chain) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, 0, len(c.entries)-1)
	for i := c.entries[sentinel].next; i != sentinel; i = c.entries[i].next {
		out = append(out, c.entries[i].item)
	}
	return out
}

// InsertItem binds item and links it directly after the cursor, then moves
// the cursor onto it. While processing, the cursor starts at the in-flight
// item, so a running item inserts its follow-ups right behind itself.
func (c *Chain) InsertItem(item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, err := c.addLocked(item)
	if err != nil {
		return err
	}
	c.entries[idx].next = c.entries[c.cursor].next
	c.entries[c.cursor].next = idx
	if c.tail == c.cursor {
		c.tail = idx
	}
	c.cursor = idx
	return nil
}

// AppendItem binds item and links it at the tail. The cursor is unaffected.
func (c *Chain) AppendItem(item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, err := c.addLocked(item)
	if err != nil {
		return err
	}
	c.entries[c.tail].next = idx
	c.tail = idx
	return nil
}

func (c *Chain) addLocked(item Item) (int, error) {
	if item == nil {
		return 0, api.ProtocolViolation(api.ErrInvalidArgument).WithContext("op", "add nil item")
	}
	switch c.state {
	case ChainAborted:
		return 0, api.Wrap(api.ErrCodeAborted, api.ErrChainAborted, "add item")
	case ChainComplete:
		return 0, api.ProtocolViolation(api.ErrChainComplete)
	}
	if err := item.base().SetOwningChain(c); err != nil {
		return 0, err
	}
	c.entries = append(c.entries, entry{item: item})
	return len(c.entries) - 1, nil
}

// StartProcessing moves a Building chain to Processing and enqueues its first
// item. An empty chain completes immediately.
func (c *Chain) StartProcessing() error {
	c.mu.Lock()
	switch c.state {
	case ChainBuilding:
	case ChainAborted:
		c.mu.Unlock()
		return api.Wrap(api.ErrCodeAborted, api.ErrChainAborted, "start")
	default:
		c.mu.Unlock()
		return api.ProtocolViolation(api.ErrChainStarted)
	}

	first := c.entries[sentinel].next
	if first == sentinel {
		c.state = ChainComplete
		done := c.onDone
		c.mu.Unlock()
		if done != nil {
			done()
		}
		return nil
	}
	c.state = ChainProcessing
	c.processed = first
	c.cursor = first
	item := c.entries[first].item
	c.mu.Unlock()

	return c.dispatch(item)
}

// onComplete advances the processed pointer past item. It is the only place
// an item's successor becomes runnable, and the successor is enqueued after
// the chain lock is released. When the chain was aborted it completes
// instead and fires the completion callback.
func (c *Chain) onComplete(b *ItemBase) error {
	c.mu.Lock()
	if c.processed == sentinel || c.entries[c.processed].item.base() != b {
		state := c.state
		c.mu.Unlock()
		return api.ProtocolViolation(api.ErrNotCurrent).WithContext("state", state.String())
	}

	if c.state == ChainAborted {
		// the in-flight item settled; nothing else is scheduled
		c.processed = sentinel
		c.state = ChainComplete
		done := c.onDone
		c.mu.Unlock()
		if done != nil {
			done()
		}
		return nil
	}

	next := c.entries[c.processed].next
	if next == sentinel {
		c.processed = sentinel
		c.state = ChainComplete
		done := c.onDone
		c.mu.Unlock()
		if done != nil {
			done()
		}
		return nil
	}

	c.processed = next
	c.cursor = next
	item := c.entries[next].item
	c.mu.Unlock()

	return c.dispatch(item)
}

// dispatch enqueues item on its planned processor, failing the chain when
// that is impossible.
func (c *Chain) dispatch(item Item) error {
	p := item.PlannedProcessor()
	if p == nil {
		err := api.ProtocolViolation(api.ErrNoProcessor)
		c.Fail(err)
		return err
	}
	if err := p.enqueue(item); err != nil {
		c.Fail(err)
		return err
	}
	return nil
}

// Abort marks the chain aborted and asks every item from the in-flight one
// onwards to abort, without waiting. Starting at the in-flight item rather
// than the cursor also covers items it inserted. Abort itself never fires the
// completion callback; that fires once the in-flight item settles. The abort
// callback fires once with api.ErrChainAborted.
func (c *Chain) Abort() {
	c.abort(api.ErrChainAborted)
}

// Fail aborts the chain with err as the cause.
func (c *Chain) Fail(err error) {
	if err == nil {
		err = api.ErrChainAborted
	}
	c.abort(err)
}

func (c *Chain) abort(cause error) {
	c.mu.Lock()
	if c.state == ChainComplete || c.state == ChainAborted {
		c.mu.Unlock()
		return
	}
	start := c.entries[sentinel].next
	if c.state == ChainProcessing && c.processed != sentinel {
		start = c.processed
	}
	c.state = ChainAborted
	c.err = cause

	var pending []Item
	for i := start; i != sentinel; i = c.entries[i].next {
		pending = append(pending, c.entries[i].item)
	}
	hook := c.onAbort
	c.mu.Unlock()

	for _, it := range pending {
		it.Abort()
	}
	if hook != nil {
		hook(cause)
	}
}
