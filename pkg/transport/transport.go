// Package transport implements the DatagramTransport: it owns the UDP
// socket, the per-peer connection table, the fragment reassembler
// table, and the maintenance ticker that drives retransmission,
// keepalive, idle teardown, and reassembly eviction.
package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodep2p/rudp/pkg/conn"
	"github.com/nodep2p/rudp/pkg/fragment"
	"github.com/nodep2p/rudp/pkg/logging"
	"github.com/nodep2p/rudp/pkg/wire"
)

// ReceiveHandler is invoked once per fully reassembled inbound
// message, reliable or unreliable.
type ReceiveHandler func(peer string, payload []byte)

// Transport binds one UDP socket and multiplexes it across many peer
// connections.
type Transport struct {
	cfg Config

	sock *net.UDPConn

	table        *shardTable
	reassembler  *fragment.Reassembler
	splitter     *fragment.Splitter

	recvHandler atomic.Value // ReceiveHandler

	running   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	counters counters
}

type counters struct {
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	retransmissions atomic.Uint64
	timeouts        atomic.Uint64
}

// New builds a Transport from cfg. It does not bind a socket; call
// Start for that.
func New(cfg Config) *Transport {
	t := &Transport{
		cfg:         cfg,
		table:       newShardTable(),
		reassembler: fragment.NewReassembler(cfg.ReassemblyTTL),
		splitter:    fragment.NewSplitter(cfg.MTU),
		stopCh:      make(chan struct{}),
	}
	t.recvHandler.Store(ReceiveHandler(func(string, []byte) {}))
	return t
}

// RegisterReceiveHandler sets the callback invoked for every fully
// reassembled inbound message. Safe to call before or after Start.
func (t *Transport) RegisterReceiveHandler(fn ReceiveHandler) {
	t.recvHandler.Store(fn)
}

// Start binds the UDP socket and spawns the receive loop and
// maintenance loop.
func (t *Transport) Start() error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	addr := &net.UDPAddr{IP: net.ParseIP(t.cfg.Host), Port: t.cfg.Port}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.running.Store(false)
		return fmt.Errorf("transport: failed to bind UDP socket: %w", err)
	}
	t.sock = sock

	logging.Infof("transport: listening on %s", sock.LocalAddr())

	t.wg.Add(2)
	go t.receiveLoop()
	go t.maintenanceLoop()
	return nil
}

// Stop closes the socket, halts both background loops, and aborts
// every connection's pending reliable sends with ErrTransportClosed.
func (t *Transport) Stop() error {
	if !t.running.CompareAndSwap(true, false) {
		return nil
	}
	t.stopOnce.Do(func() { close(t.stopCh) })

	if t.sock != nil {
		_ = t.sock.Close()
	}
	t.wg.Wait()

	now := time.Now()
	t.table.forEach(func(_ string, c *conn.Connection) {
		c.Abort(ErrTransportClosed, now)
	})

	logging.Infof("transport: stopped")
	return nil
}

// LocalAddr returns the address the transport's socket is bound to.
// Only meaningful after a successful Start.
func (t *Transport) LocalAddr() net.Addr {
	return t.sock.LocalAddr()
}

func (t *Transport) connOptions() []conn.Option {
	return []conn.Option{
		conn.WithMaxRetries(t.cfg.MaxRetries),
		conn.WithRTOBounds(t.cfg.MinRTO, t.cfg.MaxRTO),
		conn.WithMSS(t.cfg.MSS()),
	}
}

func (t *Transport) receiveHandler() ReceiveHandler {
	return t.recvHandler.Load().(ReceiveHandler)
}
