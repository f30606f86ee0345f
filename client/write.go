// File: client/write.go
// License: Apache-2.0
//
// WriteItem: streams a DataSource through the connection buffer. Each send
// completion re-arms the next fill, so the processor thread never waits on
// the network.

package client

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/m9ra/ServeRick-sub001/api"
)

// WriteItem sends a DataSource to the client's connection.
type WriteItem struct {
	ItemBase
	src      DataSource
	running  atomic.Bool
	released atomic.Bool
	sent     atomic.Int64
}

// NewWriteItem returns an item writing src on the Output processor. A nil src
// writes nothing.
func NewWriteItem(src DataSource) *WriteItem {
	it := &WriteItem{src: src}
	it.SetRoute(RouteOutput)
	return it
}

// Sent returns the number of bytes acknowledged by the connection.
func (it *WriteItem) Sent() int64 { return it.sent.Load() }

// Run starts the pump and returns without waiting for it.
func (it *WriteItem) Run(context.Context) error {
	it.running.Store(true)
	if it.Client() == nil {
		it.release()
		return api.ProtocolViolation(api.ErrNotBound).WithContext("op", "write without client")
	}
	it.pump()
	return nil
}

// Abort stops re-arming. The source is released at once when the pump is not
// running, otherwise by the next send completion.
func (it *WriteItem) Abort() {
	it.ItemBase.Abort()
	if !it.running.Load() {
		it.release()
	}
}

func (it *WriteItem) pump() {
	if it.Aborted() {
		it.release()
		return
	}
	conn := it.Client().Conn()
	if it.src == nil || it.src.Remaining() <= 0 {
		it.release()
		if err := it.Complete(); err != nil {
			it.Fail(err)
		}
		return
	}
	buf := conn.Acquire()
	if len(buf) == 0 {
		it.abandon(api.Wrap(api.ErrCodeClosed, api.ErrClientClosed, "write"))
		return
	}

	n := it.src.Fill(buf)
	if n == 0 {
		conn.Release()
		var err error = io.ErrUnexpectedEOF
		if e, ok := it.src.(sourceErr); ok && e.Err() != nil {
			err = e.Err()
		}
		it.abandon(err)
		return
	}
	conn.Send(buf, n, func(err error) {
		if err != nil {
			it.abandon(err)
			return
		}
		it.sent.Add(int64(n))
		it.pump()
	})
	conn.Release()
}

func (it *WriteItem) abandon(err error) {
	it.release()
	it.Fail(err)
}

func (it *WriteItem) release() {
	if it.src != nil && it.released.CompareAndSwap(false, true) {
		it.src.Release()
	}
}
