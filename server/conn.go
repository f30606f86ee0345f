// File: server/conn.go
// License: Apache-2.0
//
// Per-connection read loop and the items making up one request's chain.

package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/client"
	"github.com/m9ra/ServeRick-sub001/session"
	"github.com/m9ra/ServeRick-sub001/transport"
)

const maxDiscard = 256 << 10

// serveConn owns conn until its client is closed and the output buffer is
// back in the pool.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	s.control.Metrics.Add("conn.accepted", 1)
	nc, err := transport.OpenContext(ctx, conn, s.provider,
		transport.WithWriteTimeout(s.cfg.WriteTimeout),
		transport.WithConnLogger(s.base),
	)
	if err != nil {
		s.shed(conn, err)
		return
	}

	cl := client.New(nc, s.pickUnit(),
		client.WithLogger(s.base),
		client.WithOnFailure(func(err error) {
			s.control.Metrics.Add("client.failures", 1)
		}),
	)
	if !s.track(cl) {
		_ = cl.Close()
		<-nc.Done()
		return
	}
	defer s.untrack(cl)

	s.readRequests(cl, conn)
	<-nc.Done()
}

// shed refuses a connection that could not lease a buffer.
func (s *Server) shed(conn net.Conn, err error) {
	defer conn.Close()
	if !api.IsResourceExhausted(err) {
		s.log.Warning().Err(err).Log("connection setup failed")
		return
	}
	s.control.Metrics.Add("conn.shed", 1)
	if s.throttle.Allow("shed") {
		s.log.Warning().Str("remote", conn.RemoteAddr().String()).Log("buffer pool exhausted, shedding connection")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = conn.Write(shedResponse)
}

// readRequests parses requests off conn and enqueues one chain per request.
// It returns when the peer is done, the client fails or a request or reply
// asks to close; the client then closes once its queue drains.
func (s *Server) readRequests(cl *client.Client, conn net.Conn) {
	defer cl.CloseWhenIdle()

	br := bufio.NewReader(conn)
	for !cl.Closing() {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		req, err := http.ReadRequest(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !cl.Closing() {
				s.control.Metrics.Add("requests.malformed", 1)
				var ne net.Error
				if !errors.As(err, &ne) {
					s.enqueueStatic(cl, http.StatusBadRequest)
				}
			}
			return
		}
		received := time.Now()

		body, tooLarge, err := s.readBody(req)
		if err != nil {
			return
		}
		if tooLarge {
			s.enqueueStatic(cl, http.StatusRequestEntityTooLarge)
			return
		}

		s.control.Metrics.Add("requests", 1)
		r := &Request{HTTP: req, Body: body, Received: received}
		if err := cl.Enqueue(s.newRequestItem(r)); err != nil {
			return
		}
		if req.Close {
			return
		}
	}
}

func (s *Server) readBody(req *http.Request) ([]byte, bool, error) {
	defer req.Body.Close()
	body, err := io.ReadAll(io.LimitReader(req.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		// leave nothing unread so closing does not reset the 413
		_, _ = io.Copy(io.Discard, io.LimitReader(req.Body, maxDiscard))
		return nil, true, nil
	}
	return body, false, nil
}

// enqueueStatic answers with status and closes the connection afterwards.
func (s *Server) enqueueStatic(cl *client.Client, status int) {
	reply := Text(status, http.StatusText(status)+"\n")
	head := reply.renderHead(false)
	_ = cl.Enqueue(client.NewResponseItem(func(context.Context) (*client.Response, error) {
		return &client.Response{Head: head, Body: reply.source(false)}, nil
	}))
}

// requestItem heads the chain of one request. It runs on the client's
// Output processor and lays out the rest of the chain: session lookup on the
// session processor, then rendering back on Output.
type requestItem struct {
	client.ItemBase
	srv *Server
	req *Request
}

func (s *Server) newRequestItem(r *Request) *requestItem {
	it := &requestItem{srv: s, req: r}
	it.SetRoute(client.RouteOutput)
	return it
}

func (it *requestItem) Run(context.Context) error {
	s, req := it.srv, it.req
	chain := it.Chain()

	if s.sessions != nil {
		if c, err := req.HTTP.Cookie(s.cfg.SessionCookie); err == nil && c.Value != "" {
			req.SessionID = c.Value
			view := s.sessions.View(c.Value, func(sess *session.Session) {
				if sess != nil {
					req.Session = sess.Snapshot()
				}
			})
			if err := chain.InsertItem(view); err != nil {
				return err
			}
		}
	}

	render := client.NewResponseItem(func(ctx context.Context) (*client.Response, error) {
		return s.render(ctx, it, req)
	})
	if err := render.BindClient(it.Client()); err != nil {
		return err
	}
	if err := chain.InsertItem(render); err != nil {
		return err
	}
	return it.Complete()
}

// render calls the handler and converts its reply. A session update is
// inserted right behind the render step, ahead of persistence and the write.
// Unknown session ids are replaced by fresh ones.
func (s *Server) render(ctx context.Context, it *requestItem, req *Request) (*client.Response, error) {
	reply, err := s.handler.ServeRequest(ctx, req)
	if err != nil {
		if s.throttle.Allow("handler") {
			s.log.Err().Err(err).Str("path", req.HTTP.URL.Path).Log("handler failed")
		}
		reply = Text(http.StatusInternalServerError, "internal server error\n")
		reply.Close = true
	}
	if reply == nil {
		reply = &Reply{Status: http.StatusNoContent}
	}

	if reply.Session != nil && s.sessions != nil {
		id := req.SessionID
		if id == "" || req.Session == nil {
			id = session.NewID()
			if reply.Header == nil {
				reply.Header = make(http.Header)
			}
			reply.Header.Add("Set-Cookie", (&http.Cookie{
				Name:     s.cfg.SessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
			}).String())
		}
		if err := it.Chain().InsertItem(s.sessions.Mutate(id, reply.Session)); err != nil {
			return nil, err
		}
	}

	keepAlive := !reply.Close && !req.HTTP.Close
	if !keepAlive {
		// requests pipelined behind this one are never answered
		it.Client().CloseAfterActive()
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	s.control.Metrics.Add(statusClass(status), 1)
	if s.accessLog != nil {
		s.accessLog(req.HTTP.Method, req.HTTP.URL.Path, status, time.Since(req.Received))
	}

	return &client.Response{
		Head:    reply.renderHead(keepAlive),
		Body:    reply.source(req.HTTP.Method == http.MethodHead),
		Persist: reply.Persist,
	}, nil
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "responses.5xx"
	case status >= 400:
		return "responses.4xx"
	case status >= 300:
		return "responses.3xx"
	default:
		return "responses.2xx"
	}
}
