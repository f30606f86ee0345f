package work_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m9ra/ServeRick-sub001/work"
)

// recorder collects item names in execution order.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type recItem struct {
	work.ItemBase
	name   string
	rec    *recorder
	onRun  func(ctx context.Context, it *recItem) error
	runs   atomic.Int32
	aborts atomic.Int32
}

func newRecItem(p *work.Processor, name string, rec *recorder) *recItem {
	it := &recItem{name: name, rec: rec}
	it.SetPlannedProcessor(p)
	return it
}

func (it *recItem) Run(ctx context.Context) error {
	it.runs.Add(1)
	if it.rec != nil {
		it.rec.add(it.name)
	}
	if it.onRun != nil {
		return it.onRun(ctx, it)
	}
	return it.Complete()
}

func (it *recItem) Abort() {
	it.aborts.Add(1)
	it.ItemBase.Abort()
}

// doneChain returns a chain whose completions are counted and signalled.
func doneChain(opts ...work.ChainOption) (*work.Chain, *atomic.Int32, chan struct{}) {
	var fired atomic.Int32
	done := make(chan struct{}, 16)
	opts = append(opts, work.WithOnComplete(func() {
		fired.Add(1)
		done <- struct{}{}
	}))
	return work.NewChain(opts...), &fired, done
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func newProcessor(t *testing.T, name string) *work.Processor {
	t.Helper()
	p := work.NewProcessor(name)
	t.Cleanup(p.Close)
	return p
}
