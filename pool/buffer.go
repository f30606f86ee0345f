// File: pool/buffer.go
// License: Apache-2.0
//
// DataBuffer is a lease handle over one fixed-length storage slice.

package pool

import "sync/atomic"

// BufferState is the lifecycle state of a DataBuffer handle.
type BufferState int32

const (
	// StateFree marks storage sitting in the provider's free list. Handles
	// returned by GetBuffer are never observed in this state.
	StateFree BufferState = iota
	StateLeased
	StateRecycled
)

func (s BufferState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateLeased:
		return "leased"
	case StateRecycled:
		return "recycled"
	default:
		return "unknown"
	}
}

// DataBuffer owns one fixed-length byte slice for the duration of a lease.
// Every lease gets a fresh handle, so a stale handle stays Recycled even after
// its storage has been leased to somebody else.
type DataBuffer struct {
	provider *BufferProvider
	storage  []byte
	state    atomic.Int32
	lease    uint64
}

// Bytes returns the storage while the buffer is leased, nil otherwise.
func (b *DataBuffer) Bytes() []byte {
	if b == nil || b.State() != StateLeased {
		return nil
	}
	return b.storage
}

// Len returns the fixed buffer length.
func (b *DataBuffer) Len() int {
	return len(b.storage)
}

// State returns the current lifecycle state.
func (b *DataBuffer) State() BufferState {
	return BufferState(b.state.Load())
}

// Lease returns the sequence number of this lease within its provider.
func (b *DataBuffer) Lease() uint64 {
	return b.lease
}

// Recycle returns the buffer to the provider it was leased from.
func (b *DataBuffer) Recycle() error {
	return b.provider.Recycle(b)
}
