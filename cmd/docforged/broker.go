package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/config"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultEmbeddedURL = "nats://127.0.0.1:4222"

// broker is the NATS side of the progress transport. Both fields are nil
// when NATS is not configured.
type broker struct {
	server *natsserver.Server
	conn   *nats.Conn
	sink   *progress.NATSSink
}

// startBroker starts the embedded server when asked to, then connects and
// builds the progress sink. With no URL and no embedded server, events stay
// in process.
func startBroker(ctx context.Context, cfg config.NATSConfig, logger *logging.Logger) (*broker, error) {
	b := &broker{}
	addr := cfg.URL

	if cfg.Embedded {
		if addr == "" {
			addr = defaultEmbeddedURL
		}
		srv, err := startEmbedded(addr)
		if err != nil {
			return nil, err
		}
		b.server = srv
		addr = srv.ClientURL()
		logger.Info(ctx, "embedded nats started", zap.String("url", addr))
	}
	if addr == "" {
		logger.Info(ctx, "nats disabled, progress events are served over SSE only")
		return b, nil
	}

	nc, err := nats.Connect(addr,
		nats.Name("docforged"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", addr, err)
	}
	b.conn = nc

	sink, err := progress.NewNATSSink(nc, cfg.SubjectPrefix)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.sink = sink
	logger.Info(ctx, "publishing progress to nats",
		zap.String("url", addr),
		zap.String("subject_prefix", cfg.SubjectPrefix))
	return b, nil
}

func startEmbedded(addr string) (*natsserver.Server, error) {
	host, port, err := hostPort(addr)
	if err != nil {
		return nil, err
	}
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready on %s", addr)
	}
	return srv, nil
}

// hostPort extracts the listen address from a nats:// URL.
func hostPort(addr string) (string, int, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return "", 0, fmt.Errorf("invalid nats url %q", addr)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Host, natsserver.DEFAULT_PORT, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid nats port %q", portStr)
	}
	return host, port, nil
}

// Close flushes the connection and stops the embedded server.
func (b *broker) Close() {
	if b.conn != nil {
		_ = b.conn.FlushTimeout(time.Second)
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
	}
}
