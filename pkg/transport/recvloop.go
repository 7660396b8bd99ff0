package transport

import (
	"math/rand"
	"net"
	"time"

	"github.com/nodep2p/rudp/pkg/conn"
	"github.com/nodep2p/rudp/pkg/logging"
	"github.com/nodep2p/rudp/pkg/wire"
)

// maxDatagramSize bounds a single UDP read; large enough for the
// default MTU plus headroom for non-default configurations.
const maxDatagramSize = 65535

func (t *Transport) receiveLoop() {
	defer t.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := t.sock.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
				logging.Warnf("transport: read error: %v", err)
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		t.counters.bytesReceived.Add(uint64(n))
		t.counters.packetsReceived.Add(1)

		go t.handleDatagram(addr, data)
	}
}

func (t *Transport) handleDatagram(addr *net.UDPAddr, data []byte) {
	p, err := wire.Decode(data)
	if err != nil {
		return // packet-level error: silent drop, never surfaced
	}

	peer := addr.String()
	now := time.Now()

	// SendUnreliable packets carry sequence 0 and ack 0 and bypass
	// connection state: hand them straight to the reassembler.
	if (p.Type == wire.TypeDATA || p.Type == wire.TypeFRAGMENT) && p.Sequence == 0 && p.Ack == 0 {
		t.deliver(peer, p)
		return
	}

	c, ok := t.table.get(peer)
	if !ok {
		if p.Type != wire.TypeSYN {
			return // no connection context for a non-SYN packet
		}
		c = t.table.getOrCreate(peer, func() *conn.Connection {
			return conn.New(peer, rand.Uint32(), now, t.connOptions()...)
		})
	}

	res := c.HandlePacket(p, now)

	if res.Response != nil {
		t.writePacket(addr, res.Response)
	}
	for _, pkt := range res.Resend {
		t.writePacket(addr, pkt)
		t.counters.retransmissions.Add(1)
	}
	for _, delivered := range res.Delivered {
		t.deliver(peer, delivered)
	}
	if res.Closed {
		t.table.delete(peer)
	}
}

// deliver hands one in-order payload to the fragment reassembler;
// once a message completes (immediately, for non-fragments) it invokes
// the caller's receive handler.
func (t *Transport) deliver(peer string, p *wire.Packet) {
	payload := p.Payload
	if p.Flags.Has(wire.FlagCompressed) {
		inflated, err := inflate(payload)
		if err != nil {
			logging.Warnf("transport: failed to inflate compressed payload from %s: %v", peer, err)
			return
		}
		payload = inflated
	}

	message, complete, err := t.reassembler.Insert(peer, &wire.Packet{
		Type:          p.Type,
		FragmentID:    p.FragmentID,
		FragmentIndex: p.FragmentIndex,
		FragmentTotal: p.FragmentTotal,
		Payload:       payload,
	})
	if err != nil {
		logging.Warnf("transport: reassembly error from %s: %v", peer, err)
		return
	}
	if !complete {
		return
	}
	t.receiveHandler()(peer, message)
}

func (t *Transport) writePacket(addr *net.UDPAddr, p *wire.Packet) {
	encoded := wire.Encode(p)
	n, err := t.sock.WriteToUDP(encoded, addr)
	if err != nil {
		logging.Warnf("transport: write error to %s: %v", addr, err)
		return
	}
	t.counters.bytesSent.Add(uint64(n))
	t.counters.packetsSent.Add(1)
}
