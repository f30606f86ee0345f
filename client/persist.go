// File: client/persist.go
// License: Apache-2.0

package client

import (
	"context"
	"sync"

	"github.com/m9ra/ServeRick-sub001/api"
)

// PersistItem runs a persistence call for a client on the Database
// processor. The call is issued on its own goroutine and completes the item
// from there; Abort cancels its context. A panic in the call fails the chain
// as a worker failure.
type PersistItem struct {
	ItemBase
	fn func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPersistItem returns an item calling fn.
func NewPersistItem(fn func(ctx context.Context) error) *PersistItem {
	it := &PersistItem{fn: fn}
	it.SetRoute(RouteDatabase)
	return it
}

// Run issues fn and returns.
func (it *PersistItem) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	it.mu.Lock()
	it.cancel = cancel
	it.mu.Unlock()
	if it.Aborted() {
		cancel()
	}

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				it.Fail(api.WorkerFailure(r))
			}
		}()
		if err := it.fn(ctx); err != nil {
			it.Fail(err)
			return
		}
		if err := it.Complete(); err != nil {
			it.Fail(err)
		}
	}()
	return nil
}

// Abort cancels an issued call.
func (it *PersistItem) Abort() {
	it.ItemBase.Abort()
	it.mu.Lock()
	cancel := it.cancel
	it.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
