// File: cmd/serverick/site.go
// License: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/m9ra/ServeRick-sub001/server"
	"github.com/m9ra/ServeRick-sub001/session"
)

// site is the demo handler.
type site struct {
	stats func() map[string]any

	// guestbook is written only by Persist steps, which run off the
	// processor threads.
	mu        sync.Mutex
	guestbook []string
}

func newSite() *site { return &site{} }

func (s *site) ServeRequest(ctx context.Context, req *server.Request) (*server.Reply, error) {
	switch req.HTTP.URL.Path {
	case "/":
		return server.Text(http.StatusOK, "hello from serverick\n"), nil
	case "/visits":
		visits, _ := req.Session["visits"].(int)
		reply := server.Text(http.StatusOK, fmt.Sprintf("visits: %d\n", visits+1))
		reply.Session = func(sess *session.Session) { sess.Set("visits", visits+1) }
		return reply, nil
	case "/guestbook":
		return s.guestbookReply(req), nil
	case "/stats":
		if s.stats == nil {
			return server.Text(http.StatusServiceUnavailable, "stats unavailable\n"), nil
		}
		body, err := json.MarshalIndent(s.stats(), "", "  ")
		if err != nil {
			return nil, err
		}
		return &server.Reply{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"application/json"}},
			Body:   append(body, '\n'),
		}, nil
	}
	return server.Text(http.StatusNotFound, "not found\n"), nil
}

func (s *site) guestbookReply(req *server.Request) *server.Reply {
	if req.HTTP.Method != http.MethodPost {
		s.mu.Lock()
		entries := strings.Join(s.guestbook, "\n")
		s.mu.Unlock()
		return server.Text(http.StatusOK, entries+"\n")
	}
	entry := strings.TrimSpace(string(req.Body))
	if entry == "" {
		return server.Text(http.StatusBadRequest, "empty entry\n")
	}
	reply := server.Text(http.StatusCreated, "signed\n")
	reply.Persist = func(context.Context) error {
		s.mu.Lock()
		s.guestbook = append(s.guestbook, entry)
		s.mu.Unlock()
		return nil
	}
	return reply
}
