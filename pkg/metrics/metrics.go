// Package metrics exposes a transport's stats() as a Prometheus
// collector, so a caller embedding this library in a larger service can
// prometheus.MustRegister it directly next to its own collectors.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nodep2p/rudp/pkg/transport"
)

var (
	descPacketsSent     = prometheus.NewDesc("rudp_packets_sent_total", "Total packets written to the socket.", nil, nil)
	descPacketsReceived = prometheus.NewDesc("rudp_packets_received_total", "Total packets read from the socket.", nil, nil)
	descBytesSent       = prometheus.NewDesc("rudp_bytes_sent_total", "Total bytes written to the socket.", nil, nil)
	descBytesReceived   = prometheus.NewDesc("rudp_bytes_received_total", "Total bytes read from the socket.", nil, nil)
	descRetransmissions = prometheus.NewDesc("rudp_retransmissions_total", "Total packets retransmitted.", nil, nil)
	descConnections     = prometheus.NewDesc("rudp_connections", "Number of connections currently tracked.", nil, nil)

	descConnCwnd          = prometheus.NewDesc("rudp_connection_cwnd_bytes", "Congestion window.", []string{"peer"}, nil)
	descConnBytesInFlight = prometheus.NewDesc("rudp_connection_bytes_in_flight", "Unacknowledged bytes currently in flight.", []string{"peer"}, nil)
	descConnSRTT          = prometheus.NewDesc("rudp_connection_srtt_seconds", "Smoothed round-trip time estimate.", []string{"peer"}, nil)
	descConnPending       = prometheus.NewDesc("rudp_connection_pending_packets", "Unacknowledged packets awaiting retransmission or ACK.", []string{"peer"}, nil)
)

// Collector adapts a *transport.Transport's Stats() into a
// prometheus.Collector. It holds no state beyond the transport
// reference and an optional error-reporting hook, and is safe to
// register once and scrape repeatedly.
type Collector struct {
	t      *transport.Transport
	logger func(error)
}

// NewCollector wraps t for Prometheus exposition. logger receives any
// internal collection error instead of panicking; pass nil to discard.
func NewCollector(t *transport.Transport, logger func(error)) *Collector {
	if logger == nil {
		logger = func(error) {}
	}
	return &Collector{t: t, logger: logger}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- descPacketsSent
	descs <- descPacketsReceived
	descs <- descBytesSent
	descs <- descBytesReceived
	descs <- descRetransmissions
	descs <- descConnections
	descs <- descConnCwnd
	descs <- descConnBytesInFlight
	descs <- descConnSRTT
	descs <- descConnPending
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	defer func() {
		if r := recover(); r != nil {
			c.logger(fmt.Errorf("metrics: collect: %v", r))
		}
	}()

	s := c.t.Stats()

	metrics <- prometheus.MustNewConstMetric(descPacketsSent, prometheus.CounterValue, float64(s.PacketsSent))
	metrics <- prometheus.MustNewConstMetric(descPacketsReceived, prometheus.CounterValue, float64(s.PacketsReceived))
	metrics <- prometheus.MustNewConstMetric(descBytesSent, prometheus.CounterValue, float64(s.BytesSent))
	metrics <- prometheus.MustNewConstMetric(descBytesReceived, prometheus.CounterValue, float64(s.BytesReceived))
	metrics <- prometheus.MustNewConstMetric(descRetransmissions, prometheus.CounterValue, float64(s.Retransmissions))
	metrics <- prometheus.MustNewConstMetric(descConnections, prometheus.GaugeValue, float64(s.Connections))

	for _, cs := range s.PerConnection {
		metrics <- prometheus.MustNewConstMetric(descConnCwnd, prometheus.GaugeValue, float64(cs.Flow.Cwnd), cs.Peer)
		metrics <- prometheus.MustNewConstMetric(descConnBytesInFlight, prometheus.GaugeValue, float64(cs.Flow.BytesInFlight), cs.Peer)
		metrics <- prometheus.MustNewConstMetric(descConnSRTT, prometheus.GaugeValue, cs.SRTT.Seconds(), cs.Peer)
		metrics <- prometheus.MustNewConstMetric(descConnPending, prometheus.GaugeValue, float64(cs.Pending), cs.Peer)
	}
}
