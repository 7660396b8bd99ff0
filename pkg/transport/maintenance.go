package transport

import (
	"net"
	"time"

	"github.com/nodep2p/rudp/pkg/conn"
	"github.com/nodep2p/rudp/pkg/logging"
)

func (t *Transport) maintenanceLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.runMaintenance(time.Now())
		}
	}
}

func (t *Transport) runMaintenance(now time.Time) {
	var toClose []string

	t.table.forEach(func(peer string, c *conn.Connection) {
		addr, err := net.ResolveUDPAddr("udp", peer)
		if err != nil {
			return
		}

		resend, closed := c.Tick(now)
		for _, p := range resend {
			t.writePacket(addr, p)
			t.counters.retransmissions.Add(1)
			t.counters.timeouts.Add(1)
		}
		if closed {
			toClose = append(toClose, peer)
			return
		}

		if now.Sub(c.LastActivity()) > t.cfg.ConnectionTimeout {
			logging.Warnf("transport: peer %s idle past connection_timeout, resetting", peer)
			t.writePacket(addr, c.Reset(now))
			c.Abort(conn.ErrConnectionReset, now)
			toClose = append(toClose, peer)
			return
		}

		if c.State() == conn.Established && now.Sub(c.LastActivity()) > t.cfg.PingInterval {
			t.writePacket(addr, c.Keepalive(now))
		}
	})

	for _, peer := range toClose {
		t.table.delete(peer)
	}

	evicted := t.reassembler.Evict(now)
	if evicted > 0 {
		logging.Debugf("transport: evicted %d stale reassemblies", evicted)
	}
}
