package transport

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/nodep2p/rudp/pkg/conn"
	"github.com/nodep2p/rudp/pkg/wire"
)

// admissionPollInterval is how often SendReliable re-checks the
// flow/congestion controller while waiting for admission.
const admissionPollInterval = 5 * time.Millisecond

// SendUnreliable fragments payload if needed and fires each resulting
// packet at peer directly, with no connection, no ACK, and no
// retransmission.
func (t *Transport) SendUnreliable(peer string, payload []byte) error {
	if !t.running.Load() {
		return ErrTransportClosed
	}
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return ErrInvalidPeer
	}

	chunks, err := t.splitter.Split(payload)
	if err != nil {
		return ErrPayloadTooLarge
	}

	for _, chunk := range chunks {
		var p *wire.Packet
		if chunk.IsFragment() {
			p = wire.Fragment(0, chunk.FragmentID, chunk.FragmentIndex, chunk.FragmentTotal, chunk.Payload)
		} else {
			p = wire.Data(0, 0, chunk.Payload, 0)
		}
		t.writePacket(addr, p)
	}
	return nil
}

// SendReliable fragments payload if needed, establishes a connection
// to peer if one doesn't already exist, and blocks until the last
// resulting packet has been cumulatively acknowledged, the context is
// canceled, or the transport is stopped.
func (t *Transport) SendReliable(ctx context.Context, peer string, payload []byte) error {
	if !t.running.Load() {
		return ErrTransportClosed
	}
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return ErrInvalidPeer
	}

	now := time.Now()
	c := t.table.getOrCreate(peer, func() *conn.Connection {
		return conn.New(peer, rand.Uint32(), now, t.connOptions()...)
	})

	if c.State() == conn.Closed {
		syn := c.Open(now)
		t.writePacket(addr, syn)
	}

	if err := t.awaitEstablished(ctx, c); err != nil {
		return err
	}

	chunks, err := t.splitter.Split(payload)
	if err != nil {
		return ErrPayloadTooLarge
	}

	var lastSeq uint32
	for _, chunk := range chunks {
		var p *wire.Packet
		if chunk.IsFragment() {
			p = wire.Fragment(0, chunk.FragmentID, chunk.FragmentIndex, chunk.FragmentTotal, chunk.Payload)
		} else {
			p = wire.Data(0, 0, chunk.Payload, 0)
		}

		if err := t.awaitAdmission(ctx, c, len(chunk.Payload)); err != nil {
			return err
		}

		prepared := c.PrepareData(p, time.Now())
		c.Flow.OnSend(len(prepared.Payload))
		lastSeq = prepared.Sequence
		t.writePacket(addr, prepared)
	}

	waiter := c.AwaitSeq(lastSeq)
	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		c.CancelWait(lastSeq)
		return ctx.Err()
	case <-t.stopCh:
		c.CancelWait(lastSeq)
		return ErrTransportClosed
	}
}

func (t *Transport) awaitEstablished(ctx context.Context, c *conn.Connection) error {
	if c.State() == conn.Established {
		return nil
	}
	select {
	case <-c.EstablishedSignal():
		return nil
	case <-ctx.Done():
		return conn.ErrHandshakeTimeout
	case <-t.stopCh:
		return ErrTransportClosed
	}
}

func (t *Transport) awaitAdmission(ctx context.Context, c *conn.Connection, n int) error {
	if c.Flow.CanSend(n) {
		return nil
	}
	ticker := time.NewTicker(admissionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.Flow.CanSend(n) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stopCh:
			return ErrTransportClosed
		}
	}
}
