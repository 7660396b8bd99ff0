package conn

import (
	"time"

	"github.com/nodep2p/rudp/pkg/flowctl"
)

// Stats is a point-in-time snapshot of one connection's state, used for
// metrics exposition by the transport.
type Stats struct {
	Peer    string
	State   State
	SRTT    time.Duration
	RTO     time.Duration
	Pending int
	Flow    flowctl.Snapshot
}

// Stats returns a snapshot of the connection's current state.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Peer:    c.Peer,
		State:   c.state,
		SRTT:    c.rtt.srtt,
		RTO:     c.rtt.current(),
		Pending: len(c.unacked),
		Flow:    c.Flow.Stats(),
	}
}
