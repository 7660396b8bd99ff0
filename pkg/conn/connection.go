// Package conn implements the per-peer connection state machine: the
// ten-state lifecycle, sequence/ack bookkeeping, RTT/RTO estimation,
// and retransmission timers that sit above the wire codec and below
// the transport's socket loop.
package conn

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodep2p/rudp/pkg/flowctl"
	"github.com/nodep2p/rudp/pkg/logging"
	"github.com/nodep2p/rudp/pkg/wire"
)

// defaultRecvBufferCapacity bounds how far ahead of recv_seq an
// out-of-order packet may be buffered before it is dropped.
const defaultRecvBufferCapacity = 1024

// DefaultMaxRetries is the retry budget before a connection gives up
// on an unacked packet and resets.
const DefaultMaxRetries = 5

type unackedEntry struct {
	packet       *wire.Packet
	firstSent    time.Time
	lastSent     time.Time
	retries      int
	retransmitted bool
}

// Connection is a single peer's state machine. It does not own a
// socket; the transport drives it by feeding decoded packets into
// HandlePacket and sending back whatever packets it returns.
type Connection struct {
	mu sync.Mutex

	ID   uuid.UUID
	Peer string

	state State

	sendSeq uint32
	recvSeq uint32

	unacked map[uint32]*unackedEntry
	recvBuf map[uint32]*wire.Packet

	rtt  *rttEstimator
	Flow *flowctl.Controller

	lastAckReceived uint32
	haveLastAck     bool

	maxRetries         int
	recvBufferCapacity int

	lastActivity     time.Time
	timeWaitEnteredAt time.Time

	sendWaiters map[uint32]chan error

	establishedCh   chan struct{}
	establishedOnce sync.Once
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(c *Connection) { c.maxRetries = n }
}

// WithRTOBounds overrides the Jacobson/Karels clamp bounds.
func WithRTOBounds(min, max time.Duration) Option {
	return func(c *Connection) { c.rtt = newRTTEstimator(min, max) }
}

// WithMSS sets the maximum segment size the embedded flow/congestion
// controller is tuned for.
func WithMSS(mss int) Option {
	return func(c *Connection) { c.Flow = flowctl.New(mss) }
}

// New returns a Closed connection for peer, ready to either Open (as
// initiator) or receive a SYN (as listener).
func New(peer string, initialSendSeq uint32, now time.Time, opts ...Option) *Connection {
	c := &Connection{
		ID:                 uuid.New(),
		Peer:               peer,
		state:              Closed,
		sendSeq:            initialSendSeq,
		unacked:            make(map[uint32]*unackedEntry),
		recvBuf:            make(map[uint32]*wire.Packet),
		rtt:                newRTTEstimator(DefaultMinRTO, DefaultMaxRTO),
		Flow:               flowctl.New(flowctl.DefaultMSS),
		maxRetries:         DefaultMaxRetries,
		recvBufferCapacity: defaultRecvBufferCapacity,
		lastActivity:       now,
		sendWaiters:        make(map[uint32]chan error),
		establishedCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open transitions a Closed connection to SynSent and returns the SYN
// packet to transmit.
func (c *Connection) Open(now time.Time) *wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.sendSeq
	c.sendSeq++
	p := wire.Syn(seq)
	c.recordUnackedLocked(seq, p, now)
	c.transition(SynSent, now)
	return p
}

// CloseActive initiates a graceful close by sending FIN: from
// Established it moves to FinWait1 (active close), and from CloseWait
// (peer already closed its side) it moves to LastAck. Any other state
// returns nil — there is nothing to close.
func (c *Connection) CloseActive(now time.Time) *wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next State
	switch c.state {
	case Established:
		next = FinWait1
	case CloseWait:
		next = LastAck
	default:
		return nil
	}

	seq := c.sendSeq
	c.sendSeq++
	p := wire.Fin(seq)
	c.recordUnackedLocked(seq, p, now)
	c.transition(next, now)
	return p
}

// Reset builds an RST packet carrying the next sequence number, for a
// caller that is about to tear down the connection (e.g. the
// transport's idle-connection_timeout teardown) and needs to notify
// the peer first. RST is fire-and-forget: it is not recorded in
// unacked, matching how an incoming RST is handled unconditionally
// with no ack-wait.
func (c *Connection) Reset(now time.Time) *wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.sendSeq
	c.sendSeq++
	return wire.Rst(seq)
}

// PrepareData assigns a sequence number to a caller-provided payload
// packet (DATA or FRAGMENT), records it in unacked, and returns the
// packet ready for transmission. Callers must have already confirmed
// admission via Flow.CanSend and will call Flow.OnSend themselves once
// the packet is actually written to the socket.
func (c *Connection) PrepareData(p *wire.Packet, now time.Time) *wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.sendSeq
	c.sendSeq++
	p.Sequence = seq
	p.Ack = c.recvSeq
	c.recordUnackedLocked(seq, p, now)
	return p
}

// AwaitSeq registers a completion channel for the sequence number of
// the last packet of a reliable send; it fires once that sequence is
// cumulatively acknowledged or the connection gives up on it.
func (c *Connection) AwaitSeq(seq uint32) <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan error, 1)
	if _, stillPending := c.unacked[seq]; !stillPending {
		// Already acknowledged before the caller asked to wait.
		ch <- nil
		return ch
	}
	c.sendWaiters[seq] = ch
	return ch
}

func (c *Connection) recordUnackedLocked(seq uint32, p *wire.Packet, now time.Time) {
	c.unacked[seq] = &unackedEntry{packet: p, firstSent: now, lastSent: now}
}

func (c *Connection) transition(to State, now time.Time) {
	logging.Debugf("conn[%s peer=%s]: %s -> %s", c.ID, c.Peer, c.state, to)
	if to == TimeWait {
		c.timeWaitEnteredAt = now
	}
	if to == Established {
		c.establishedOnce.Do(func() { close(c.establishedCh) })
	}
	c.state = to
}

// EstablishedSignal returns a channel that closes the instant this
// connection first reaches Established. Callers awaiting handshake
// completion select on it alongside their own cancellation.
func (c *Connection) EstablishedSignal() <-chan struct{} {
	return c.establishedCh
}

// CancelWait unregisters a pending AwaitSeq waiter without touching
// the underlying unacked packet: the packet may still be delivered to
// the peer, only the caller's interest in being notified is withdrawn.
func (c *Connection) CancelWait(seq uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sendWaiters, seq)
}
