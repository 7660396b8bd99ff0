package transport

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newLoopbackPair(t *testing.T, opts ...Option) (a, b *Transport) {
	t.Helper()
	cfg := NewConfig(append([]Option{WithHost("127.0.0.1"), WithPort(0)}, opts...)...)
	a = New(cfg)
	b = New(cfg)
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())
	t.Cleanup(func() {
		_ = a.Stop()
		_ = b.Stop()
	})
	return a, b
}

// collector gathers every message a transport's receive handler sees,
// safe for concurrent delivery from the receive loop's per-datagram
// goroutines.
type collector struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *collector) handle(_ string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, append([]byte(nil), payload...))
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil
	}
	return c.msgs[len(c.msgs)-1]
}

// S1 — small reliable send: the receive handler fires exactly once with
// the exact payload, and the send completes well within a second.
func TestSendReliableSmallPayload(t *testing.T) {
	a, b := newLoopbackPair(t)

	recv := &collector{}
	b.RegisterReceiveHandler(recv.handle)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := a.SendReliable(ctx, b.LocalAddr().String(), []byte("hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return recv.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []byte("hello"), recv.last())

	stats := a.Stats()
	require.GreaterOrEqual(t, stats.PacketsSent, uint64(1))
}

// S2 — fragmented reliable send: a 4096-byte payload at the default MTU
// splits into 3 fragments (1368, 1368, 1360) and B's handler sees
// exactly one reassembled 4096-byte message.
func TestSendReliableFragmentedPayload(t *testing.T) {
	a, b := newLoopbackPair(t)

	recv := &collector{}
	b.RegisterReceiveHandler(recv.handle)

	payload := bytes.Repeat([]byte{0xAB}, 4096)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := a.SendReliable(ctx, b.LocalAddr().String(), payload)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return recv.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, payload, recv.last())
}

// S6 — idle keepalive: once established, a connection idle past its
// ping interval exchanges PING/PONG and does not time out before
// connection_timeout elapses.
func TestIdleConnectionExchangesKeepalive(t *testing.T) {
	a, b := newLoopbackPair(t,
		WithPingInterval(30*time.Millisecond),
		WithConnectionTimeout(300*time.Millisecond),
		WithMaintenanceInterval(10*time.Millisecond),
	)

	recv := &collector{}
	b.RegisterReceiveHandler(recv.handle)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.SendReliable(ctx, b.LocalAddr().String(), []byte("ping-me")))
	require.Eventually(t, func() bool { return recv.count() == 1 }, time.Second, 5*time.Millisecond)

	// Stay idle longer than connection_timeout; the connection must
	// still be alive (stats still report it) since each PING/PONG round
	// refreshes last_activity before connection_timeout expires.
	time.Sleep(450 * time.Millisecond)

	require.Equal(t, 1, a.Stats().Connections, "connection should survive repeated keepalive rounds")
	require.Equal(t, 1, b.Stats().Connections)
}

// SendUnreliable delivers without establishing a connection: the
// receive handler still fires, and no connection is tracked afterward.
func TestSendUnreliableDeliversWithoutConnection(t *testing.T) {
	a, b := newLoopbackPair(t)

	recv := &collector{}
	b.RegisterReceiveHandler(recv.handle)

	require.NoError(t, a.SendUnreliable(b.LocalAddr().String(), []byte("fire and forget")))

	require.Eventually(t, func() bool { return recv.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []byte("fire and forget"), recv.last())
	require.Equal(t, 0, a.Stats().Connections)
}

// SendReliable against an unreachable port respects context
// cancellation rather than hanging forever.
func TestSendReliableCancelsOnContextTimeout(t *testing.T) {
	a := New(NewConfig(WithHost("127.0.0.1"), WithPort(0)))
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := a.SendReliable(ctx, "127.0.0.1:1", []byte("nobody home"))
	require.Error(t, err)
}

// Stop aborts every in-flight reliable send with ErrTransportClosed.
func TestStopAbortsPendingSends(t *testing.T) {
	a := New(NewConfig(WithHost("127.0.0.1"), WithPort(0)))
	require.NoError(t, a.Start())

	// Point at a real but silent peer: a bound socket on b that never
	// registers a receive handler still completes the handshake, so
	// instead target an address nothing is listening on to keep the
	// connection stuck in SynSent, then stop mid-handshake.
	done := make(chan error, 1)
	go func() {
		done <- a.SendReliable(context.Background(), "127.0.0.1:65500", []byte("x"))
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Stop())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("SendReliable did not return after Stop")
	}
}
