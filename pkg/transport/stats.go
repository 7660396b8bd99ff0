package transport

import "github.com/nodep2p/rudp/pkg/conn"

// Stats is a point-in-time snapshot of the transport's aggregate
// counters plus one Stats entry per currently tracked connection.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Retransmissions uint64
	Timeouts        uint64
	Connections     int
	PerConnection   []conn.Stats
}

// Stats returns a snapshot of the transport's counters and every live
// connection's state, per the caller-facing stats API. pkg/metrics
// adapts this into a prometheus.Collector.
func (t *Transport) Stats() Stats {
	s := Stats{
		PacketsSent:     t.counters.packetsSent.Load(),
		PacketsReceived: t.counters.packetsReceived.Load(),
		BytesSent:       t.counters.bytesSent.Load(),
		BytesReceived:   t.counters.bytesReceived.Load(),
		Retransmissions: t.counters.retransmissions.Load(),
		Timeouts:        t.counters.timeouts.Load(),
	}
	t.table.forEach(func(_ string, c *conn.Connection) {
		s.Connections++
		s.PerConnection = append(s.PerConnection, c.Stats())
	})
	return s
}
