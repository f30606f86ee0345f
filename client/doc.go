// File: client/doc.go
// Package client
// License: Apache-2.0
//
// Client-bound work items. A Client owns one connection and an outer FIFO of
// items; each queued item heads its own chain and the next one starts only
// when that chain completes, so responses on one connection leave in request
// order. ResponseItem renders, PersistItem stores and WriteItem streams a
// DataSource through the connection's single leased buffer.

package client
