// File: server/handler.go
// License: Apache-2.0
//
// Handler contract and reply rendering.

package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/m9ra/ServeRick-sub001/client"
	"github.com/m9ra/ServeRick-sub001/session"
)

// Request is one parsed request. Body is read in full before the request is
// scheduled.
type Request struct {
	HTTP      *http.Request
	Body      []byte
	SessionID string
	// Session is a copy of the session values taken before rendering, nil
	// without a live session.
	Session  map[string]any
	Received time.Time
}

// Reply is what a handler renders.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
	// Stream replaces Body when set; ContentLength must then hold its size.
	Stream        client.DataSource
	ContentLength int64
	// Persist runs on the Database processor before the reply is written.
	Persist func(ctx context.Context) error
	// Session updates the request's session on the session processor,
	// creating one when the request had none.
	Session func(*session.Session)
	// Close ends the connection after this reply.
	Close bool
}

// Handler renders replies. It runs on an Output processor and must not block
// on I/O; slow work belongs in Persist.
type Handler interface {
	ServeRequest(ctx context.Context, req *Request) (*Reply, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Reply, error)

// ServeRequest calls f.
func (f HandlerFunc) ServeRequest(ctx context.Context, req *Request) (*Reply, error) {
	return f(ctx, req)
}

// Text returns a plain text reply.
func Text(status int, body string) *Reply {
	return &Reply{
		Status: status,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(body),
	}
}

var notFound = HandlerFunc(func(context.Context, *Request) (*Reply, error) {
	return Text(http.StatusNotFound, "not found\n"), nil
})

// shedResponse is written straight to connections refused for lack of
// buffers.
var shedResponse = []byte("HTTP/1.1 503 Service Unavailable\r\n" +
	"Connection: close\r\n" +
	"Content-Length: 0\r\n" +
	"Retry-After: 1\r\n\r\n")

// length returns the body size announced in the head.
func (r *Reply) length() int64 {
	if r.Stream != nil {
		return r.ContentLength
	}
	return int64(len(r.Body))
}

// source returns the body to stream, or nil for HEAD requests.
func (r *Reply) source(head bool) client.DataSource {
	if head {
		if r.Stream != nil {
			r.Stream.Release()
		}
		return nil
	}
	if r.Stream != nil {
		return r.Stream
	}
	if len(r.Body) == 0 {
		return nil
	}
	return client.NewBytesSource(r.Body)
}

// renderHead builds the status line and headers.
func (r *Reply) renderHead(keepAlive bool) []byte {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	h := r.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Content-Length", strconv.FormatInt(r.length(), 10))
	if keepAlive {
		h.Set("Connection", "keep-alive")
	} else {
		h.Set("Connection", "close")
	}
	if h.Get("Date") == "" {
		h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	_ = h.Write(&b)
	b.WriteString("\r\n")
	return b.Bytes()
}
