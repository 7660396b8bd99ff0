// Package tcpframe frames the same wire.Packet encoding over a
// byte-oriented net.Conn stream instead of UDP datagrams. TCP already
// supplies ordered, reliable, congestion-controlled delivery, so no
// connection state machine and no flow/congestion controller run here
// — this is framing only: a 4-byte big-endian length prefix in front of
// each encoded packet.
package tcpframe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nodep2p/rudp/pkg/wire"
)

// lengthPrefixSize is the width of the frame's length header.
const lengthPrefixSize = 4

// MaxFrameSize bounds a single frame at 16 MiB, the same figure as the
// fragment reassembler's per-peer cap on buffered bytes, guarding
// against a corrupt or hostile length prefix triggering an unbounded
// allocation.
const MaxFrameSize = 16 << 20

// ErrFrameTooLarge is returned when a frame's declared length exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("tcpframe: frame exceeds maximum size")

// ErrClosed is returned by WritePacket/ReadPacket after Close.
var ErrClosed = errors.New("tcpframe: connection closed")

// Conn wraps a net.Conn with length-prefixed wire.Packet framing. A
// single Conn may be written from multiple goroutines; ReadPacket is
// expected to be called from one reader loop, mirroring how a TCP
// byte stream is consumed.
type Conn struct {
	nc net.Conn

	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

// NewConn wraps an established net.Conn for packet framing. The caller
// owns dialing/accepting; Close on the returned Conn closes nc too.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// WritePacket encodes p and writes it as one length-prefixed frame,
// honoring ctx's deadline if it has one.
func (c *Conn) WritePacket(ctx context.Context, p *wire.Packet) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.applyDeadline(ctx, c.nc.SetWriteDeadline); err != nil {
		return err
	}

	encoded := wire.Encode(p)
	frame := make([]byte, lengthPrefixSize+len(encoded))
	binary.BigEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(encoded)))
	copy(frame[lengthPrefixSize:], encoded)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(frame)
	if err != nil {
		return fmt.Errorf("tcpframe: write failed: %w", err)
	}
	return nil
}

// ReadPacket blocks until one full frame has arrived and returns its
// decoded packet, honoring ctx's deadline if it has one. Unlike the UDP
// transport, a malformed frame here is a stream-framing error, not a
// silent drop: the byte stream itself would desync if the caller kept
// reading past it.
func (c *Conn) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if err := c.applyDeadline(ctx, c.nc.SetReadDeadline); err != nil {
		return nil, err
	}

	prefix := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(c.nc, prefix); err != nil {
		return nil, fmt.Errorf("tcpframe: read length prefix: %w", err)
	}

	frameLen := binary.BigEndian.Uint32(prefix)
	if frameLen > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(c.nc, body); err != nil {
		return nil, fmt.Errorf("tcpframe: read frame body: %w", err)
	}

	return wire.Decode(body)
}

func (c *Conn) applyDeadline(ctx context.Context, set func(time.Time) error) error {
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	return set(time.Time{})
}

func (c *Conn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// Close closes the underlying connection. Idempotent.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

// LocalAddr returns the underlying connection's local address.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
