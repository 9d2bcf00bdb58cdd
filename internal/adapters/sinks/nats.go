// Package sinks relays derived events to external brokers.
package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"signalRelay/internal/adapters/codec"
	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
)

// natsConn is the part of *nats.Conn the sink uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSConfig holds the NATS sink settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	ClientName    string
	Logger        ports.Logger
}

// NATSSink publishes every event to <prefix>.<symbol>.<interval> over NATS
// core (fire-and-forget).
type NATSSink struct {
	conn   natsConn
	prefix string
	logger ports.Logger
}

// NewNATSSink connects to the NATS server at cfg.URL. The client keeps
// reconnecting in the background if the server goes away later.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for NATS sink", ports.ErrConfiguration)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: NATS URL is required", ports.ErrConfiguration)
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "signal-relay"
	}
	log := cfg.Logger

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),

		// Connection Event Handlers
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			fields := map[string]interface{}{}
			if err != nil {
				fields["error"] = err.Error()
			}
			log.Warn(context.Background(), "NATS disconnected, attempting reconnect", fields)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info(context.Background(), "NATS reconnected", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info(context.Background(), "NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w: %w", ports.ErrConnectionFailed, err)
	}
	log.Info(context.Background(), "Connected to NATS", map[string]interface{}{"url": nc.ConnectedUrl()})
	return newNATSSink(nc, cfg.SubjectPrefix, log), nil
}

func newNATSSink(conn natsConn, prefix string, logger ports.Logger) *NATSSink {
	if prefix == "" {
		prefix = "signals"
	}
	return &NATSSink{conn: conn, prefix: prefix, logger: logger}
}

// Name identifies the sink.
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject events of ev's stream are published on.
func (s *NATSSink) Subject(ev domain.DerivedEvent) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, ev.Symbol, ev.Interval)
}

// Deliver publishes ev.
func (s *NATSSink) Deliver(_ context.Context, ev domain.DerivedEvent) error {
	data, err := codec.EncodeEvent(ev)
	if err != nil {
		return err
	}
	subject := s.Subject(ev)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s failed: %w: %w", subject, ports.ErrTransport, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
