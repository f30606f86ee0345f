package server_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m9ra/ServeRick-sub001/api"
	"github.com/m9ra/ServeRick-sub001/client"
	"github.com/m9ra/ServeRick-sub001/server"
	"github.com/m9ra/ServeRick-sub001/session"
)

func startServer(t *testing.T, h server.Handler, mutate func(*server.Config)) (*server.Server, string) {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Units = 2
	cfg.BufferLength = 32
	cfg.MaxMemoryUsage = 32 * 64
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := server.New(cfg, server.WithHandler(h))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return")
		}
	})
	return srv, "http://" + ln.Addr().String()
}

func get(t *testing.T, c *http.Client, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := c.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

func echoPath() server.Handler {
	return server.HandlerFunc(func(ctx context.Context, req *server.Request) (*server.Reply, error) {
		return server.Text(http.StatusOK, "path="+req.HTTP.URL.Path+"\n"), nil
	})
}

func TestServer_ServesRequests(t *testing.T) {
	_, base := startServer(t, echoPath(), nil)
	c := &http.Client{Timeout: 5 * time.Second}

	for _, p := range []string{"/", "/a/long/path/that/spans/more/than/one/output/buffer"} {
		status, body, hdr := get(t, c, base+p)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "path="+p+"\n", body)
		assert.Equal(t, "text/plain; charset=utf-8", hdr.Get("Content-Type"))
	}
}

func TestServer_DefaultHandlerIsNotFound(t *testing.T) {
	_, base := startServer(t, nil, nil)
	status, _, _ := get(t, &http.Client{Timeout: 5 * time.Second}, base+"/missing")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_PipelinedResponsesInOrder(t *testing.T) {
	slow := server.HandlerFunc(func(ctx context.Context, req *server.Request) (*server.Reply, error) {
		reply := server.Text(http.StatusOK, req.HTTP.URL.Path)
		if req.HTTP.URL.Path == "/first" {
			reply.Persist = func(context.Context) error {
				time.Sleep(30 * time.Millisecond)
				return nil
			}
		}
		return reply, nil
	})
	_, base := startServer(t, slow, nil)

	conn, err := net.Dial("tcp", strings.TrimPrefix(base, "http://"))
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn,
		"GET /first HTTP/1.1\r\nHost: x\r\n\r\n"+
			"GET /second HTTP/1.1\r\nHost: x\r\n\r\n"+
			"GET /third HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	br := bufio.NewReader(conn)
	for _, want := range []string{"/first", "/second", "/third"} {
		resp, err := http.ReadResponse(br, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, want, string(body))
	}
	_, err = br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_SessionsRoundTrip(t *testing.T) {
	counter := server.HandlerFunc(func(ctx context.Context, req *server.Request) (*server.Reply, error) {
		visits, _ := req.Session["visits"].(int)
		reply := server.Text(http.StatusOK, fmt.Sprintf("visits=%d", visits))
		reply.Session = func(s *session.Session) { s.Set("visits", visits+1) }
		return reply, nil
	})
	srv, base := startServer(t, counter, nil)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := &http.Client{Timeout: 5 * time.Second, Jar: jar}

	for i := 0; i < 3; i++ {
		_, body, _ := get(t, c, base+"/")
		assert.Equal(t, fmt.Sprintf("visits=%d", i), body)
	}
	assert.EqualValues(t, 1, srv.Sessions().Stats().Live)
}

func TestServer_PersistRunsBeforeWrite(t *testing.T) {
	var persisted atomic.Bool
	h := server.HandlerFunc(func(ctx context.Context, req *server.Request) (*server.Reply, error) {
		reply := server.Text(http.StatusCreated, "stored")
		reply.Persist = func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			persisted.Store(true)
			return nil
		}
		return reply, nil
	})
	_, base := startServer(t, h, nil)
	status, body, _ := get(t, &http.Client{Timeout: 5 * time.Second}, base+"/")
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "stored", body)
	assert.True(t, persisted.Load())
}

func TestServer_StreamedBody(t *testing.T) {
	payload := strings.Repeat("stream-me;", 40)
	h := server.HandlerFunc(func(ctx context.Context, req *server.Request) (*server.Reply, error) {
		return &server.Reply{
			Status:        http.StatusOK,
			Stream:        client.NewReaderSource(strings.NewReader(payload), int64(len(payload))),
			ContentLength: int64(len(payload)),
		}, nil
	})
	_, base := startServer(t, h, nil)
	_, body, hdr := get(t, &http.Client{Timeout: 5 * time.Second}, base+"/")
	assert.Equal(t, payload, body)
	assert.Equal(t, fmt.Sprint(len(payload)), hdr.Get("Content-Length"))
}

func TestServer_HandlerErrorIs500(t *testing.T) {
	h := server.HandlerFunc(func(ctx context.Context, req *server.Request) (*server.Reply, error) {
		return nil, errors.New("template exploded")
	})
	srv, base := startServer(t, h, nil)
	status, _, hdr := get(t, &http.Client{Timeout: 5 * time.Second}, base+"/")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "close", hdr.Get("Connection"))
	assert.EqualValues(t, 1, srv.Stats()["responses.5xx"])
}

func TestServer_ClosingReplyDropsPipelinedRequests(t *testing.T) {
	var later atomic.Int32
	h := server.HandlerFunc(func(ctx context.Context, req *server.Request) (*server.Reply, error) {
		if req.HTTP.URL.Path == "/fail" {
			time.Sleep(20 * time.Millisecond)
			return nil, errors.New("template exploded")
		}
		later.Add(1)
		return server.Text(http.StatusOK, req.HTTP.URL.Path), nil
	})
	_, base := startServer(t, h, nil)

	conn, err := net.Dial("tcp", strings.TrimPrefix(base, "http://"))
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn,
		"GET /fail HTTP/1.1\r\nHost: x\r\n\r\n"+
			"GET /after HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.True(t, resp.Close)

	_, err = br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, later.Load())
}

func TestServer_ShedsWhenPoolExhausted(t *testing.T) {
	srv, base := startServer(t, echoPath(), func(cfg *server.Config) {
		cfg.MaxMemoryUsage = cfg.BufferLength
	})
	addr := strings.TrimPrefix(base, "http://")

	// the first connection holds the only buffer
	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer first.Close()
	_, err = io.WriteString(first, "GET /hold HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, err)
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := http.ReadResponse(bufio.NewReader(first), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	second, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err = http.ReadResponse(bufio.NewReader(second), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	assert.EqualValues(t, 1, srv.Stats()["conn.shed"])
}

func TestServer_MalformedRequest(t *testing.T) {
	_, base := startServer(t, echoPath(), nil)
	conn, err := net.Dial("tcp", strings.TrimPrefix(base, "http://"))
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "NOT A REQUEST\r\n\r\n")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_BodyTooLarge(t *testing.T) {
	_, base := startServer(t, echoPath(), func(cfg *server.Config) { cfg.MaxBodyBytes = 8 })
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Post(base+"/", "text/plain", strings.NewReader("way more than eight bytes"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServer_StatsAndLifecycle(t *testing.T) {
	srv, base := startServer(t, echoPath(), nil)
	get(t, &http.Client{Timeout: 5 * time.Second}, base+"/")

	stats := srv.Stats()
	assert.EqualValues(t, 1, stats["requests"])
	assert.Contains(t, stats, "pool")
	assert.Contains(t, stats, "units")
	assert.Contains(t, stats, "sessions")
	assert.Len(t, srv.Units(), 2)
	assert.NotNil(t, srv.Addr())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(context.Background(), ln), server.ErrAlreadyRunning)
}

func TestServer_ServeAfterShutdown(t *testing.T) {
	srv, err := server.New(nil, server.WithConfig(func(c *server.Config) { c.Units = 1 }))
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(context.Background(), ln), server.ErrServerClosed)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, server.DefaultConfig().Validate())

	cases := map[string]func(*server.Config){
		"buffer":  func(c *server.Config) { c.BufferLength = 0 },
		"ceiling": func(c *server.Config) { c.MaxMemoryUsage = c.BufferLength - 1 },
		"units":   func(c *server.Config) { c.Units = 0 },
		"timeout": func(c *server.Config) { c.ReadTimeout = -time.Second },
		"body":    func(c *server.Config) { c.MaxBodyBytes = -1 },
		"policy":  func(c *server.Config) { c.ExhaustionPolicy = 7 },
		"level":   func(c *server.Config) { c.LogLevel = "chatty" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := server.DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if name != "level" {
				assert.ErrorIs(t, err, api.ErrInvalidArgument)
			}
			_, err = server.New(cfg)
			assert.Error(t, err)
		})
	}
}
