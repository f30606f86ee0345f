package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m9ra/ServeRick-sub001/server"
)

func serve(t *testing.T, s *site, method, path, body string, sess map[string]any) *server.Reply {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := &server.Request{HTTP: httptest.NewRequest(method, path, r), Body: []byte(body), Session: sess}
	reply, err := s.ServeRequest(context.Background(), req)
	require.NoError(t, err)
	return reply
}

func TestSite_Routes(t *testing.T) {
	s := newSite()
	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/", "", nil).Status)
	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/nope", "", nil).Status)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodGet, "/stats", "", nil).Status)

	s.stats = func() map[string]any { return map[string]any{"requests": 3} }
	stats := serve(t, s, http.MethodGet, "/stats", "", nil)
	assert.JSONEq(t, `{"requests": 3}`, string(stats.Body))
}

func TestSite_Visits(t *testing.T) {
	reply := serve(t, newSite(), http.MethodGet, "/visits", "", map[string]any{"visits": 4})
	assert.Equal(t, "visits: 5\n", string(reply.Body))
	require.NotNil(t, reply.Session)
}

func TestSite_Guestbook(t *testing.T) {
	s := newSite()
	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, "/guestbook", "  ", nil).Status)

	signed := serve(t, s, http.MethodPost, "/guestbook", "hi there", nil)
	assert.Equal(t, http.StatusCreated, signed.Status)
	require.NotNil(t, signed.Persist)
	require.NoError(t, signed.Persist(context.Background()))

	list := serve(t, s, http.MethodGet, "/guestbook", "", nil)
	assert.Equal(t, "hi there\n", string(list.Body))
}
