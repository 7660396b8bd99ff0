package conn

import (
	"time"

	"github.com/nodep2p/rudp/pkg/logging"
	"github.com/nodep2p/rudp/pkg/wire"
)

// DefaultMSL is the maximum segment lifetime used to size the
// TimeWait -> Closed timer (2*MSL).
const DefaultMSL = 30 * time.Second

// Result is what HandlePacket produced: an optional response to
// transmit back to the peer, any packets newly ready for the caller
// (in-order DATA/FRAGMENT payloads, including ones that became
// deliverable because a gap just filled), and packets fast-retransmit
// or an explicit NACK asked to be resent immediately.
type Result struct {
	Response  *wire.Packet
	Delivered []*wire.Packet
	Resend    []*wire.Packet
	Closed    bool
}

// HandlePacket feeds one decoded, already-validated packet into the
// state machine and returns what the transport should do next.
func (c *Connection) HandlePacket(p *wire.Packet, now time.Time) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastActivity = now

	if p.Type == wire.TypeRST {
		c.failAllWaitersLocked(ErrConnectionReset)
		c.transition(Closed, now)
		return Result{Closed: true}
	}

	var res Result
	switch p.Type {
	case wire.TypeSYN:
		res = c.handleSynLocked(p, now)
	case wire.TypeSYNACK:
		res = c.handleSynAckLocked(p, now)
	case wire.TypeACK:
		res = c.handleAckLocked(p, now)
	case wire.TypeDATA, wire.TypeFRAGMENT:
		res = c.handleDataLocked(p, now)
	case wire.TypeFIN:
		res = c.handleFinLocked(p, now)
	case wire.TypePING:
		if p.Sequence == c.recvSeq {
			// PING occupies sequence space: stepping past it lets the
			// PONG acknowledge it and releases anything buffered behind it.
			c.recvSeq++
			for {
				next, ok := c.recvBuf[c.recvSeq]
				if !ok {
					break
				}
				delete(c.recvBuf, c.recvSeq)
				res.Delivered = append(res.Delivered, next)
				c.recvSeq++
			}
		}
		res.Response = wire.Pong(c.sendSeq, c.recvSeq)
	case wire.TypePONG:
		c.processAckLocked(p.Ack, p.Window, now, &res)
	case wire.TypeNACK:
		res = c.handleNackLocked(p)
	default:
		c.processAckLocked(p.Ack, p.Window, now, &res)
	}
	return res
}

func (c *Connection) handleSynLocked(p *wire.Packet, now time.Time) Result {
	switch c.state {
	case Closed, Listen:
		c.recvSeq = p.Sequence + 1
		seq := c.sendSeq
		c.sendSeq++
		resp := wire.SynAck(seq, c.recvSeq)
		c.recordUnackedLocked(seq, resp, now)
		c.transition(SynRcvd, now)
		return Result{Response: resp}
	default:
		return Result{}
	}
}

func (c *Connection) handleSynAckLocked(p *wire.Packet, now time.Time) Result {
	if c.state != SynSent {
		return Result{}
	}
	c.recvSeq = p.Sequence + 1
	var res Result
	c.processAckLocked(p.Ack, p.Window, now, &res)
	c.transition(Established, now)
	res.Response = wire.Ack(c.sendSeq, c.recvSeq, c.advertisedWindowLocked())
	return res
}

func (c *Connection) handleAckLocked(p *wire.Packet, now time.Time) Result {
	var res Result
	c.processAckLocked(p.Ack, p.Window, now, &res)

	switch c.state {
	case SynRcvd:
		c.transition(Established, now)
	case FinWait1:
		c.transition(FinWait2, now)
	case Closing:
		c.transition(TimeWait, now)
	case LastAck:
		c.transition(Closed, now)
		res.Closed = true
	}
	return res
}

func (c *Connection) handleFinLocked(p *wire.Packet, now time.Time) Result {
	var res Result
	c.processAckLocked(p.Ack, p.Window, now, &res)

	c.recvSeq = p.Sequence + 1
	res.Response = wire.Ack(c.sendSeq, c.recvSeq, c.advertisedWindowLocked())

	switch c.state {
	case Established:
		c.transition(CloseWait, now)
	case FinWait1:
		c.transition(Closing, now)
	case FinWait2:
		c.transition(TimeWait, now)
	}
	return res
}

func (c *Connection) handleDataLocked(p *wire.Packet, now time.Time) Result {
	var res Result
	c.processAckLocked(p.Ack, p.Window, now, &res)

	switch {
	case p.Sequence == c.recvSeq:
		res.Delivered = append(res.Delivered, p)
		c.recvSeq++
		for {
			next, ok := c.recvBuf[c.recvSeq]
			if !ok {
				break
			}
			delete(c.recvBuf, c.recvSeq)
			res.Delivered = append(res.Delivered, next)
			c.recvSeq++
		}
		res.Response = wire.Ack(c.sendSeq, c.recvSeq, c.advertisedWindowLocked())

	case p.Sequence > c.recvSeq:
		if int(p.Sequence-c.recvSeq) > c.recvBufferCapacity {
			return res // beyond receive window: silent drop, no ack
		}
		c.recvBuf[p.Sequence] = p
		res.Response = wire.Ack(c.sendSeq, c.recvSeq, c.advertisedWindowLocked())

	default:
		// Duplicate of an already-delivered sequence: drop the payload
		// but still ack, so the peer's retransmit logic can progress.
		res.Response = wire.Ack(c.sendSeq, c.recvSeq, c.advertisedWindowLocked())
	}
	return res
}

func (c *Connection) handleNackLocked(p *wire.Packet) Result {
	entry, ok := c.unacked[p.Ack]
	if !ok {
		return Result{}
	}
	entry.lastSent = time.Time{} // force immediate resend on next Tick
	return Result{Resend: []*wire.Packet{entry.packet}}
}

// processAckLocked folds a cumulative-ack value and advertised
// receiver window into the retransmission and flow/congestion state,
// releasing any send waiters whose packet is now fully acknowledged.
func (c *Connection) processAckLocked(ackValue uint32, receiverWindow uint16, now time.Time, res *Result) {
	if !c.haveLastAck {
		c.haveLastAck = true
		c.lastAckReceived = ackValue
		c.ackNewDataLocked(ackValue, receiverWindow, now)
		return
	}

	if seqLess(c.lastAckReceived, ackValue) {
		c.lastAckReceived = ackValue
		c.ackNewDataLocked(ackValue, receiverWindow, now)
		return
	}

	if ackValue == c.lastAckReceived && len(c.unacked) > 0 {
		fr := c.Flow.OnDuplicateAck(ackValue)
		if fr.Triggered {
			if entry, ok := c.unacked[fr.AckValue]; ok {
				entry.retransmitted = true
				entry.lastSent = now
				res.Resend = append(res.Resend, entry.packet)
				logging.Debugf("conn[%s peer=%s]: fast retransmit seq=%d", c.ID, c.Peer, fr.AckValue)
			}
		}
	}
}

// ackNewDataLocked removes every unacked entry with seq < ackValue,
// folds RTT samples (Karn's algorithm: skip retransmitted packets),
// updates the flow/congestion controller, and wakes send waiters.
func (c *Connection) ackNewDataLocked(ackValue uint32, receiverWindow uint16, now time.Time) {
	ackedBytes := 0
	for seq, entry := range c.unacked {
		if !seqLess(seq, ackValue) {
			continue
		}
		ackedBytes += len(entry.packet.Payload)
		if !entry.retransmitted {
			c.rtt.update(now.Sub(entry.firstSent))
		}
		delete(c.unacked, seq)
		if ch, ok := c.sendWaiters[seq]; ok {
			ch <- nil
			close(ch)
			delete(c.sendWaiters, seq)
		}
	}
	if ackedBytes > 0 || receiverWindow != 0 {
		c.Flow.OnAck(ackedBytes, int(receiverWindow))
	}
}

func (c *Connection) failAllWaitersLocked(err error) {
	for seq, ch := range c.sendWaiters {
		ch <- err
		close(ch)
		delete(c.sendWaiters, seq)
	}
}

// advertisedWindowLocked reports the receiver's free buffer capacity in
// bytes, since flowctl.Controller.OnAck consumes the advertised window
// as a byte budget (EffectiveWindow = min(flowWindow, cwnd) -
// bytesInFlight, admission gated per payload byte count). recvBuf is
// sized in packet slots, so the free-slot count is scaled by MSS to get
// an equivalent byte figure.
func (c *Connection) advertisedWindowLocked() uint16 {
	freeSlots := c.recvBufferCapacity - len(c.recvBuf)
	if freeSlots < 0 {
		freeSlots = 0
	}
	freeBytes := freeSlots * c.Flow.MSS()
	if freeBytes > 0xFFFF {
		freeBytes = 0xFFFF
	}
	return uint16(freeBytes)
}

// seqLess reports whether a precedes b, using the same signed-distance
// wraparound comparison TCP uses for 32-bit sequence numbers.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}
