package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nodep2p/rudp/pkg/logging"
	"github.com/nodep2p/rudp/pkg/metrics"
	"github.com/nodep2p/rudp/pkg/transport"
)

const version = "0.1.0"

func main() {
	host := flag.String("host", transport.DefaultHost, "bind address")
	port := flag.Int("port", 9001, "bind port")
	mtu := flag.Int("mtu", transport.DefaultMTU, "fragmentation MTU")
	flag.Parse()

	logging.Infof("rudp-server %s starting on %s:%d", version, *host, *port)

	cfg := transport.NewConfig(
		transport.WithHost(*host),
		transport.WithPort(*port),
		transport.WithMTU(*mtu),
	)
	t := transport.New(cfg)

	t.RegisterReceiveHandler(func(peer string, payload []byte) {
		logging.Infof("received %d bytes from %s", len(payload), peer)
	})

	if err := t.Start(); err != nil {
		logging.Fatalf("failed to start transport: %v", err)
	}

	collector := metrics.NewCollector(t, func(err error) {
		logging.Warnf("metrics collection error: %v", err)
	})
	prometheus.MustRegister(collector)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Infof("shutting down")
	if err := t.Stop(); err != nil {
		logging.Errorf("error during shutdown: %v", err)
	}
}
