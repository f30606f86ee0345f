// File: client/item.go
// License: Apache-2.0
//
// ItemBase for client-bound items: a set-once client back reference and a
// route choosing the processor from the client's unit.

package client

import (
	"sync/atomic"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/work"
)

// ClientItem is a work item that belongs to a client.
type ClientItem interface {
	work.Item
	BindClient(c *Client) error
	Client() *Client
}

// Route picks the processor of a unit an item runs on.
type Route func(u *work.Unit) *work.Processor

var (
	RouteOutput   Route = (*work.Unit).Output
	RouteDatabase Route = (*work.Unit).Database
)

// RouteNamed routes to a unit's extra processor, falling back to Output.
func RouteNamed(name string) Route {
	return func(u *work.Unit) *work.Processor {
		if p, ok := u.Processor(name); ok {
			return p
		}
		return u.Output()
	}
}

// ItemBase extends work.ItemBase with the client binding.
type ItemBase struct {
	work.ItemBase
	client atomic.Pointer[Client]
	route  Route
}

// BindClient sets the owning client. It may be called once.
func (b *ItemBase) BindClient(c *Client) error {
	if c == nil {
		return api.ProtocolViolation(api.ErrInvalidArgument).WithContext("op", "bind nil client")
	}
	if !b.client.CompareAndSwap(nil, c) {
		return api.ProtocolViolation(api.ErrAlreadyBound).WithContext("op", "bind client")
	}
	return nil
}

// Client returns the owning client, or nil before binding.
func (b *ItemBase) Client() *Client { return b.client.Load() }

// SetRoute selects the processor within the client's unit. Output is used
// when no route is set.
func (b *ItemBase) SetRoute(r Route) { b.route = r }

// PlannedProcessor prefers an explicitly planned processor, then the route
// applied to the client's unit.
func (b *ItemBase) PlannedProcessor() *work.Processor {
	if p := b.ItemBase.PlannedProcessor(); p != nil {
		return p
	}
	c := b.client.Load()
	if c == nil || c.unit == nil {
		return nil
	}
	r := b.route
	if r == nil {
		r = RouteOutput
	}
	return r(c.unit)
}

// bindLike binds child to the same client as b.
func (b *ItemBase) bindLike(child ClientItem) error {
	c := b.client.Load()
	if c == nil {
		return api.ProtocolViolation(api.ErrNotBound).WithContext("op", "derive client item")
	}
	return child.BindClient(c)
}
