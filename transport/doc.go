// File: transport/doc.go
// Package transport
// License: Apache-2.0
//
// Network side of the server: NetConn adapts a net.Conn to client.Conn with a
// leased output buffer and an asynchronous sender, and Acceptor runs the
// accept loop.

package transport
