// Package work
// License: Apache-2.0
//
// Scheduling core of the server. A Chain is an ordered list of Items that must
// complete strictly in order; each Item names the Processor it has to run on,
// and successive Items of one Chain may run on different Processors. A
// Processor is one goroutine locked to its own OS thread, draining a FIFO of
// ready Items. A Unit bundles the Processors one execution context needs.
//
// The hand-off between processors happens in Item.Complete: the chain advances
// its processed pointer and enqueues the next Item on that Item's planned
// Processor, so no two Items of one Chain ever run concurrently.
package work
