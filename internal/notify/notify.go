// Package notify announces processed units to external listeners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/continuousdoc/internal/history"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
)

// Notifier publishes unit events.
type Notifier interface {
	Notify(ctx context.Context, e history.UnitEvent) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Notify(context.Context, history.UnitEvent) error { return nil }
func (Noop) Close() error                                    { return nil }

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes each event as JSON on a NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	logger  *slog.Logger
}

// NewNATSNotifier connects to the NATS server at url.
func NewNATSNotifier(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("continuousdoc"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("NATS notifier connected", slog.String("url", url), logfields.Subject(subject))
	return &NATSNotifier{conn: conn, pub: conn, subject: subject, logger: logger}, nil
}

// Notify publishes e. The context bounds only local work; delivery is
// asynchronous and flushed on Close.
func (n *NATSNotifier) Notify(ctx context.Context, e history.UnitEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	n.logger.Debug("Published unit event",
		logfields.Unit(e.Unit),
		logfields.Outcome(e.Outcome),
		logfields.Subject(n.subject))
	return nil
}

// Close flushes pending events and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
