// File: work/processor.go
// License: Apache-2.0
//
// Processor: one dedicated OS thread draining one FIFO of ready items.

package work

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/internal/concurrency"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
)

type processorKey struct{}

// ProcessorFromContext returns the processor executing the current item.
func ProcessorFromContext(ctx context.Context) (*Processor, bool) {
	p, ok := ctx.Value(processorKey{}).(*Processor)
	return p, ok
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithCPU pins the processor thread to cpu. Negative leaves it unpinned.
func WithCPU(cpu int) ProcessorOption {
	return func(p *Processor) { p.cpu = cpu }
}

// WithProcessorLogger attaches a logger.
func WithProcessorLogger(l *logging.Logger) ProcessorOption {
	return func(p *Processor) { p.log = l }
}

// ProcessorStats holds the processor counters.
type ProcessorStats struct {
	Name     string
	Enqueued uint64
	Executed uint64
	Failed   uint64
	Skipped  uint64
	Pending  int
}

// Processor runs items one at a time in enqueue order.
type Processor struct {
	name string
	cpu  int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  *concurrency.FIFO[Item]
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	log      *logging.Logger
	throttle *logging.Throttle

	enqueued atomic.Uint64
	executed atomic.Uint64
	failed   atomic.Uint64
	skipped  atomic.Uint64
}

// NewProcessor starts the processor's worker thread.
func NewProcessor(name string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		name:     name,
		cpu:      -1,
		queue:    concurrency.NewFIFO[Item](),
		done:     make(chan struct{}),
		throttle: logging.DefaultThrottle(),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, o := range opts {
		o(p)
	}
	p.log = logging.Component(p.log, "processor")
	if p.log != nil {
		p.log = p.log.Clone().Str("processor", name).Logger()
	}
	base, cancel := context.WithCancel(context.Background())
	p.ctx = context.WithValue(base, processorKey{}, p)
	p.cancel = cancel

	go p.loop()
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string { return p.name }

func (p *Processor) String() string { return p.name }

// EnqueueChain queues the chain's current item, which must be planned on p.
func (p *Processor) EnqueueChain(c *Chain) error {
	item := c.Current()
	if item == nil {
		return api.ProtocolViolation(api.ErrNotCurrent).WithContext("op", "enqueue chain without current item")
	}
	if item.PlannedProcessor() != p {
		return api.ProtocolViolation(api.ErrWrongProcessor).WithContext("processor", p.name)
	}
	return p.enqueue(item)
}

func (p *Processor) enqueue(item Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.Wrap(api.ErrCodeClosed, api.ErrProcessorClosed, p.name)
	}
	p.queue.Push(item)
	p.enqueued.Add(1)
	p.cond.Signal()
	return nil
}

func (p *Processor) loop() {
	defer close(p.done)

	release, err := concurrency.LockThread(p.cpu)
	defer release()
	if err != nil {
		p.log.Warning().Int("cpu", p.cpu).Err(err).Log("thread not pinned")
	}

	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		item, ok := p.queue.Pop()
		p.mu.Unlock()
		if !ok {
			return
		}
		p.execute(item)
	}
}

// execute runs one item. Failures stay with the item's chain; the loop keeps
// going.
func (p *Processor) execute(item Item) {
	chain := item.base().Chain()
	if chain != nil && chain.State() == ChainAborted {
		// settle the in-flight item without running it
		p.skipped.Add(1)
		_ = item.base().Complete()
		return
	}

	err := p.run(item)
	p.executed.Add(1)
	if err == nil {
		return
	}

	p.failed.Add(1)
	werr := api.WorkerFailure(err)
	if p.throttle.Allow(p.name) {
		p.log.Err().Err(werr).Log("work item failed")
	}
	if chain != nil {
		chain.Fail(werr)
	}
}

func (p *Processor) run(item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = api.WorkerFailure(r)
		}
	}()
	return item.Run(p.ctx)
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() ProcessorStats {
	p.mu.Lock()
	pending := p.queue.Len()
	p.mu.Unlock()
	return ProcessorStats{
		Name:     p.name,
		Enqueued: p.enqueued.Load(),
		Executed: p.executed.Load(),
		Failed:   p.failed.Load(),
		Skipped:  p.skipped.Load(),
		Pending:  pending,
	}
}

// Close stops accepting items, lets the worker drain what is queued and waits
// for it to exit. It must not be called from an item running on p.
func (p *Processor) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
	}
	p.mu.Unlock()
	<-p.done
	p.cancel()
}
