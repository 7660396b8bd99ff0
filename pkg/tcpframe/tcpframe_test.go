package tcpframe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodep2p/rudp/pkg/wire"
)

func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestWriteReadPacketRoundTrip(t *testing.T) {
	ln := listenLoopback(t)

	serverDone := make(chan *wire.Packet, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			serverDone <- nil
			return
		}
		defer raw.Close()
		conn := NewConn(raw)
		p, err := conn.ReadPacket(context.Background())
		require.NoError(t, err)
		serverDone <- p
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	client := NewConn(raw)
	sent := wire.Data(1, 0, []byte("over a stream"), 0)
	require.NoError(t, client.WritePacket(context.Background(), sent))

	select {
	case got := <-serverDone:
		require.NotNil(t, got)
		require.Equal(t, sent.Type, got.Type)
		require.Equal(t, sent.Sequence, got.Sequence)
		require.Equal(t, sent.Payload, got.Payload)
	case <-time.After(time.Second):
		t.Fatal("server did not receive the packet in time")
	}
}

func TestWriteReadPacketMultipleFrames(t *testing.T) {
	ln := listenLoopback(t)

	const n = 5
	serverDone := make(chan []*wire.Packet, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			serverDone <- nil
			return
		}
		defer raw.Close()
		conn := NewConn(raw)
		var got []*wire.Packet
		for i := 0; i < n; i++ {
			p, err := conn.ReadPacket(context.Background())
			if err != nil {
				break
			}
			got = append(got, p)
		}
		serverDone <- got
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	client := NewConn(raw)
	for i := 0; i < n; i++ {
		p := wire.Data(uint32(i), 0, []byte{byte(i)}, 0)
		require.NoError(t, client.WritePacket(context.Background(), p))
	}

	select {
	case got := <-serverDone:
		require.Len(t, got, n)
		for i, p := range got {
			require.Equal(t, uint32(i), p.Sequence)
			require.Equal(t, []byte{byte(i)}, p.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not receive all frames in time")
	}
}

func TestReadPacketRespectsContextDeadline(t *testing.T) {
	ln := listenLoopback(t)

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		defer raw.Close()
		// Never write anything; the client's read should time out.
		time.Sleep(200 * time.Millisecond)
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	client := NewConn(raw)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.ReadPacket(ctx)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	ln := listenLoopback(t)
	go func() {
		raw, err := ln.Accept()
		if err == nil {
			raw.Close()
		}
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	client := NewConn(raw)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.ReadPacket(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
