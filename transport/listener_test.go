package transport_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m9ra/ServeRick-sub001/transport"
)

func TestAcceptor_ServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := transport.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	acc := transport.NewAcceptor(ln, func(conn net.Conn) {
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	})
	served := make(chan error, 1)
	go func() { served <- acc.Serve(ctx) }()

	conn, err := net.Dial("tcp", acc.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	reply := make([]byte, 4)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(reply))
	require.NoError(t, conn.Close())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	acc.Wait()
	assert.EqualValues(t, 1, acc.Accepted())
	assert.NoError(t, acc.Close())
}

func TestAcceptor_RecoversHandlerPanic(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	acc := transport.NewAcceptor(ln, func(net.Conn) { panic("handler bug") })
	go func() { _ = acc.Serve(context.Background()) }()
	defer acc.Close()

	conn, err := net.Dial("tcp", acc.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// the acceptor closes the connection after recovering
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
