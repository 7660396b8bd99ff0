package conn

import (
	"sort"
	"time"

	"github.com/nodep2p/rudp/pkg/logging"
	"github.com/nodep2p/rudp/pkg/wire"
)

// Tick runs one maintenance pass: it resends unacked packets whose RTO
// has elapsed (applying exponential backoff and signaling the
// congestion controller), gives up on entries past maxRetries, and
// advances TimeWait to Closed once 2*MSL has elapsed. It returns the
// packets to retransmit in ascending sequence order and whether the
// connection just transitioned to Closed.
func (c *Connection) Tick(now time.Time) (toResend []*wire.Packet, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == TimeWait {
		if now.Sub(c.timeWaitEnteredAt) >= 2*DefaultMSL {
			c.transition(Closed, now)
			return nil, true
		}
		return nil, false
	}

	if c.state == Closed {
		return nil, false
	}

	var expiredSeqs []uint32
	for seq, entry := range c.unacked {
		if now.Sub(entry.lastSent) <= c.rtt.current() {
			continue
		}
		expiredSeqs = append(expiredSeqs, seq)
	}
	sort.Slice(expiredSeqs, func(i, j int) bool { return seqLess(expiredSeqs[i], expiredSeqs[j]) })

	for _, seq := range expiredSeqs {
		entry := c.unacked[seq]
		if entry.retries >= c.maxRetries {
			logging.Warnf("conn[%s peer=%s]: seq=%d exceeded max retries, resetting", c.ID, c.Peer, seq)
			delete(c.unacked, seq)
			c.failAllWaitersLocked(ErrSendTimeout)
			c.transition(Closed, now)
			return toResend, true
		}

		entry.retries++
		entry.retransmitted = true
		entry.lastSent = now
		c.rtt.backoff()
		c.Flow.OnTimeout()
		toResend = append(toResend, entry.packet)
	}

	return toResend, false
}

// LastActivity reports the last time any packet was received on this
// connection, used by the transport's idle-keepalive scheduler.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Keepalive builds a PING packet for the transport's idle-keepalive
// ticker. Like any other packet on the wire it consumes a fresh
// sequence number and is recorded in unacked, so a lost PONG is caught
// by the normal RTO/backoff/max-retries path in Tick rather than only
// by the coarser idle-connection timer.
func (c *Connection) Keepalive(now time.Time) *wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.sendSeq
	c.sendSeq++
	p := wire.Ping(seq)
	c.recordUnackedLocked(seq, p, now)
	return p
}

// PendingCount reports how many packets are currently unacknowledged,
// used for metrics exposition.
func (c *Connection) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unacked)
}

// Abort fails every pending reliable-send waiter with err and forces
// the connection to Closed, for transport shutdown or idle-timeout
// teardown.
func (c *Connection) Abort(err error, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAllWaitersLocked(err)
	c.transition(Closed, now)
}
