// File: work/item.go
// License: Apache-2.0
//
// Item contract and the reusable ItemBase every item embeds.

package work

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/m9ra/ServeRick-sub001/api"
)

// Item is one unit of scheduled work. The set of capabilities is fixed:
// implementations embed ItemBase, which supplies binding, completion and the
// default planned processor.
type Item interface {
	// Run performs the action on the planned processor. It may insert further
	// items into its chain before returning. Synchronous items call Complete
	// before returning; asynchronous ones issue their operation and complete
	// from its callback. A returned error fails the chain.
	Run(ctx context.Context) error
	// Abort requests cooperative cancellation. It is idempotent and safe in
	// any state.
	Abort()
	// PlannedProcessor is the processor the item must execute on.
	PlannedProcessor() *Processor

	base() *ItemBase
}

// ItemBase carries the bookkeeping shared by all items.
type ItemBase struct {
	planned   *Processor
	chain     atomic.Pointer[Chain]
	completed atomic.Bool
	aborted   atomic.Bool
}

func (b *ItemBase) base() *ItemBase { return b }

// PlannedProcessor returns the fixed processor set by SetPlannedProcessor.
func (b *ItemBase) PlannedProcessor() *Processor { return b.planned }

// SetPlannedProcessor fixes the processor the item runs on.
func (b *ItemBase) SetPlannedProcessor(p *Processor) { b.planned = p }

// SetOwningChain binds the item to c. It may be called once.
func (b *ItemBase) SetOwningChain(c *Chain) error {
	if c == nil {
		return api.ProtocolViolation(api.ErrInvalidArgument).WithContext("op", "bind nil chain")
	}
	if !b.chain.CompareAndSwap(nil, c) {
		return api.ProtocolViolation(api.ErrAlreadyBound).WithContext("op", "bind chain")
	}
	return nil
}

// Chain returns the owning chain, or nil before binding.
func (b *ItemBase) Chain() *Chain { return b.chain.Load() }

// Complete marks the item done and lets the chain advance. It may be called
// from any goroutine, once.
func (b *ItemBase) Complete() error {
	c := b.chain.Load()
	if c == nil {
		return api.ProtocolViolation(api.ErrNotBound)
	}
	if !b.completed.CompareAndSwap(false, true) {
		return api.ProtocolViolation(api.ErrDoubleComplete)
	}
	return c.onComplete(b)
}

// Completed reports whether Complete has succeeded or been attempted.
func (b *ItemBase) Completed() bool { return b.completed.Load() }

// Abort flags the item as cancelled.
func (b *ItemBase) Abort() { b.aborted.Store(true) }

// Aborted reports whether Abort was requested.
func (b *ItemBase) Aborted() bool { return b.aborted.Load() }

// Fail aborts the owning chain with err as the cause.
func (b *ItemBase) Fail(err error) {
	if c := b.chain.Load(); c != nil {
		c.Fail(err)
	}
}

// FuncItem runs a function synchronously and completes.
type FuncItem struct {
	ItemBase
	fn func(ctx context.Context) error
}

// NewFuncItem returns an item running fn on p.
func NewFuncItem(p *Processor, fn func(ctx context.Context) error) *FuncItem {
	it := &FuncItem{fn: fn}
	it.SetPlannedProcessor(p)
	return it
}

// Run calls fn and completes the item when fn succeeds.
func (it *FuncItem) Run(ctx context.Context) error {
	if it.fn != nil {
		if err := it.fn(ctx); err != nil {
			return err
		}
	}
	return it.Complete()
}

// AsyncItem models a begin/callback pair. Begin issues the operation and
// returns at once; the operation later calls done from whatever goroutine
// finishes it, which completes the item or fails its chain. A panic in begin
// is recovered by the processor; goroutines begin starts must recover their
// own panics and report them through done.
type AsyncItem struct {
	ItemBase
	begin func(ctx context.Context, done func(error))
	once  sync.Once
}

// NewAsyncItem returns an item whose Run calls begin on p.
func NewAsyncItem(p *Processor, begin func(ctx context.Context, done func(error))) *AsyncItem {
	it := &AsyncItem{begin: begin}
	it.SetPlannedProcessor(p)
	return it
}

// Run issues the operation without waiting for it.
func (it *AsyncItem) Run(ctx context.Context) error {
	it.begin(ctx, it.done)
	return nil
}

func (it *AsyncItem) done(err error) {
	it.once.Do(func() {
		if err != nil {
			it.Fail(err)
			return
		}
		if cerr := it.Complete(); cerr != nil {
			it.Fail(cerr)
		}
	})
}
