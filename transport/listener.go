// File: transport/listener.go
// License: Apache-2.0
//
// Acceptor: TCP accept loop handing each connection to a handler goroutine.

package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m9ra/ServeRick-sub001/internal/logging"
)

// Listen opens a TCP listener on addr.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

// AcceptorOption configures an Acceptor.
type AcceptorOption func(*Acceptor)

// WithAcceptorLogger attaches a logger.
func WithAcceptorLogger(l *logging.Logger) AcceptorOption {
	return func(a *Acceptor) { a.log = logging.Component(l, "acceptor") }
}

// Acceptor serves one listener.
type Acceptor struct {
	ln      net.Listener
	handler func(net.Conn)
	log     *logging.Logger

	wg       sync.WaitGroup
	closed   atomic.Bool
	accepted atomic.Uint64
}

// NewAcceptor returns an acceptor calling handler for each connection.
func NewAcceptor(ln net.Listener, handler func(net.Conn), opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{ln: ln, handler: handler}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Addr returns the listening address.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Accepted returns the number of accepted connections.
func (a *Acceptor) Accepted() uint64 { return a.accepted.Load() }

// Serve accepts until ctx is done or Close is called, which both return nil.
// Timeouts back off and retry.
func (a *Acceptor) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if a.closed.Load() || ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				a.log.Warning().Err(err).Dur("retry", delay).Log("accept error")
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0
		a.accepted.Add(1)
		a.wg.Add(1)
		go a.handle(conn)
	}
}

func (a *Acceptor) handle(conn net.Conn) {
	defer a.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			a.log.Err().Any("panic", r).Str("remote", conn.RemoteAddr().String()).Log("panic in connection handler")
			_ = conn.Close()
		}
	}()
	a.handler(conn)
}

// Close stops accepting. Running handlers are not interrupted.
func (a *Acceptor) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := a.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Wait blocks until every handler returned.
func (a *Acceptor) Wait() { a.wg.Wait() }
