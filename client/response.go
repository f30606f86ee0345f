// File: client/response.go
// License: Apache-2.0
//
// ResponseItem: render step of a request. It asks the handler for a
// response and inserts the persist and write steps right behind itself.

package client

import (
	"context"
	"fmt"
)

// Response is what a ResponseHandler produces. Head is written before Body;
// Persist, when set, runs on the Database processor before anything is
// written.
type Response struct {
	Head    []byte
	Body    DataSource
	Persist func(ctx context.Context) error
}

// ResponseHandler renders a response on the processor the item is routed to.
type ResponseHandler func(ctx context.Context) (*Response, error)

// ResponseItem renders one response for a client.
type ResponseItem struct {
	ItemBase
	handler ResponseHandler
}

// NewResponseItem returns an item rendering through h on the Output
// processor.
func NewResponseItem(h ResponseHandler) *ResponseItem {
	it := &ResponseItem{handler: h}
	it.SetRoute(RouteOutput)
	return it
}

// Run renders and schedules the follow-up items.
func (it *ResponseItem) Run(ctx context.Context) error {
	if it.handler == nil {
		return fmt.Errorf("client: response item without handler")
	}
	resp, err := it.handler(ctx)
	if err != nil {
		return err
	}
	if resp == nil {
		resp = &Response{}
	}
	body := resp.Body
	if len(resp.Head) > 0 {
		body = Concat(NewBytesSource(resp.Head), resp.Body)
	}
	if it.Aborted() {
		// the chain was aborted while rendering; settle without follow-ups
		release(body)
		return it.Complete()
	}

	chain := it.Chain()
	if resp.Persist != nil {
		persist := NewPersistItem(resp.Persist)
		if err := it.bindLike(persist); err != nil {
			release(body)
			return err
		}
		if err := chain.InsertItem(persist); err != nil {
			release(body)
			return err
		}
	}
	write := NewWriteItem(body)
	if err := it.bindLike(write); err != nil {
		release(body)
		return err
	}
	if err := chain.InsertItem(write); err != nil {
		release(body)
		return err
	}
	return it.Complete()
}

func release(src DataSource) {
	if src != nil {
		src.Release()
	}
}
