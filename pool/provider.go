// File: pool/provider.go
// License: Apache-2.0
//
// BufferProvider: LIFO free list with a hard memory ceiling.

package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
)

// ExhaustionPolicy decides what GetBuffer does when a new buffer would cross
// the memory ceiling and the free list is empty.
type ExhaustionPolicy int

const (
	// PolicyReject fails the lease immediately with api.ErrResourceExhausted.
	// Callers shed the connection that asked for it.
	PolicyReject ExhaustionPolicy = iota
	// PolicyBlock waits until another lease is recycled, the context is done,
	// or the provider is closed.
	PolicyBlock
)

func (p ExhaustionPolicy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyBlock:
		return "block"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseExhaustionPolicy maps "reject" or "block" onto a policy.
func ParseExhaustionPolicy(s string) (ExhaustionPolicy, error) {
	switch s {
	case "", "reject":
		return PolicyReject, nil
	case "block":
		return PolicyBlock, nil
	}
	return PolicyReject, fmt.Errorf("%w: exhaustion policy %q", api.ErrInvalidArgument, s)
}

// Stats aggregates buffer allocation/reuse counters.
type Stats struct {
	BufferLength       int
	MaximalMemoryUsage int
	CurrentMemoryUsage int
	Leased             int
	Free               int
	TotalAllocated     uint64
	TotalReused        uint64
	Exhausted          uint64
	Policy             ExhaustionPolicy
}

// Option configures a BufferProvider.
type Option func(*BufferProvider)

// WithPolicy selects the exhaustion policy.
func WithPolicy(p ExhaustionPolicy) Option {
	return func(bp *BufferProvider) { bp.policy = p }
}

// WithLogger attaches a logger for exhaustion warnings.
func WithLogger(l *logging.Logger) Option {
	return func(bp *BufferProvider) { bp.log = logging.Component(l, "pool") }
}

// WithThrottle overrides the warning throttle.
func WithThrottle(t *logging.Throttle) Option {
	return func(bp *BufferProvider) { bp.throttle = t }
}

// BufferProvider leases fixed-length buffers. All state is guarded by mu, so
// it is safe to use from any work processor.
type BufferProvider struct {
	mu   sync.Mutex
	cond *sync.Cond

	free               [][]byte // LIFO
	bufferLength       int
	maximalMemoryUsage int
	currentMemoryUsage int
	leased             int
	closed             bool
	policy             ExhaustionPolicy

	leases         uint64
	totalAllocated uint64
	totalReused    uint64
	exhausted      uint64

	log      *logging.Logger
	throttle *logging.Throttle
}

// NewBufferProvider creates a provider whose allocations never exceed
// maximalMemoryUsage bytes.
func NewBufferProvider(bufferLength, maximalMemoryUsage int, opts ...Option) (*BufferProvider, error) {
	if bufferLength <= 0 {
		return nil, fmt.Errorf("%w: buffer length %d", api.ErrInvalidArgument, bufferLength)
	}
	if maximalMemoryUsage < bufferLength {
		return nil, fmt.Errorf("%w: memory ceiling %d below buffer length %d",
			api.ErrInvalidArgument, maximalMemoryUsage, bufferLength)
	}
	bp := &BufferProvider{
		bufferLength:       bufferLength,
		maximalMemoryUsage: maximalMemoryUsage,
		throttle:           logging.DefaultThrottle(),
	}
	bp.cond = sync.NewCond(&bp.mu)
	for _, o := range opts {
		o(bp)
	}
	return bp, nil
}

// BufferLength returns the fixed length of every buffer.
func (bp *BufferProvider) BufferLength() int {
	return bp.bufferLength
}

// GetBuffer leases a buffer. Under PolicyBlock it waits without a deadline;
// prefer GetBufferContext there.
func (bp *BufferProvider) GetBuffer() (*DataBuffer, error) {
	return bp.GetBufferContext(context.Background())
}

// GetBufferContext leases a buffer, reusing free storage first. When the
// ceiling is reached the configured policy applies; ctx bounds PolicyBlock.
func (bp *BufferProvider) GetBufferContext(ctx context.Context) (*DataBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	var (
		stopWake func() bool
		counted  bool
	)
	defer func() {
		if stopWake != nil {
			stopWake()
		}
	}()

	for {
		if bp.closed {
			return nil, api.ErrPoolClosed
		}
		if storage, ok := bp.takeLocked(); ok {
			return bp.leaseLocked(storage), nil
		}

		if !counted {
			bp.exhausted++
			counted = true
		}
		if bp.policy != PolicyBlock {
			bp.warnExhaustedLocked()
			return nil, api.Wrap(api.ErrCodeResourceExhausted, api.ErrResourceExhausted, "buffer pool at memory ceiling").
				WithContext("current", bp.currentMemoryUsage).
				WithContext("maximal", bp.maximalMemoryUsage)
		}
		if err := ctx.Err(); err != nil {
			return nil, api.Wrap(api.ErrCodeResourceExhausted, err, "waiting for a free buffer")
		}
		if stopWake == nil {
			// Wake every waiter on cancellation; each re-checks its own ctx.
			stopWake = context.AfterFunc(ctx, func() {
				bp.mu.Lock()
				bp.cond.Broadcast()
				bp.mu.Unlock()
			})
		}
		bp.warnExhaustedLocked()
		bp.cond.Wait()
	}
}

// takeLocked pops the free list or allocates within the ceiling.
func (bp *BufferProvider) takeLocked() ([]byte, bool) {
	if n := len(bp.free); n > 0 {
		storage := bp.free[n-1]
		bp.free[n-1] = nil
		bp.free = bp.free[:n-1]
		bp.totalReused++
		return storage, true
	}
	if bp.currentMemoryUsage+bp.bufferLength > bp.maximalMemoryUsage {
		return nil, false
	}
	bp.currentMemoryUsage += bp.bufferLength
	bp.totalAllocated++
	return make([]byte, bp.bufferLength), true
}

func (bp *BufferProvider) leaseLocked(storage []byte) *DataBuffer {
	bp.leases++
	bp.leased++
	b := &DataBuffer{provider: bp, storage: storage, lease: bp.leases}
	b.state.Store(int32(StateLeased))
	return b
}

func (bp *BufferProvider) warnExhaustedLocked() {
	if !bp.throttle.Allow("exhausted") {
		return
	}
	bp.log.Warning().
		Int("current", bp.currentMemoryUsage).
		Int("maximal", bp.maximalMemoryUsage).
		Int("leased", bp.leased).
		Str("policy", bp.policy.String()).
		Log("buffer pool exhausted")
}

// Recycle returns buf's storage to the free list. A second Recycle of the same
// handle fails with api.ErrDoubleRecycle and leaves the pool untouched.
func (bp *BufferProvider) Recycle(buf *DataBuffer) error {
	if buf == nil {
		return api.ProtocolViolation(api.ErrInvalidArgument).WithContext("op", "recycle nil buffer")
	}
	if buf.provider != bp {
		return api.ProtocolViolation(api.ErrForeignBuffer)
	}
	if !buf.state.CompareAndSwap(int32(StateLeased), int32(StateRecycled)) {
		return api.ProtocolViolation(api.ErrDoubleRecycle).WithContext("lease", buf.lease)
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.leased--
	storage := buf.storage
	if bp.closed {
		bp.currentMemoryUsage -= len(storage)
	} else {
		clear(storage)
		bp.free = append(bp.free, storage)
	}
	bp.cond.Signal()
	return nil
}

// Stats returns a consistent snapshot of the provider counters.
func (bp *BufferProvider) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return Stats{
		BufferLength:       bp.bufferLength,
		MaximalMemoryUsage: bp.maximalMemoryUsage,
		CurrentMemoryUsage: bp.currentMemoryUsage,
		Leased:             bp.leased,
		Free:               len(bp.free),
		TotalAllocated:     bp.totalAllocated,
		TotalReused:        bp.totalReused,
		Exhausted:          bp.exhausted,
		Policy:             bp.policy,
	}
}

// Close drops the free list and fails every blocked and future lease with
// api.ErrPoolClosed. Outstanding leases may still be recycled.
func (bp *BufferProvider) Close() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.closed = true
	bp.currentMemoryUsage -= len(bp.free) * bp.bufferLength
	bp.free = nil
	bp.cond.Broadcast()
}
