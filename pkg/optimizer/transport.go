package optimizer

import (
	"context"
	"fmt"

	natsclient "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/internal/nats"
)

// Transport is the message session the client runs over. It is satisfied by
// NATSTransport and by in-memory doubles in tests.
type Transport interface {
	// Request sends data to subject and waits for the acknowledgement.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	// Subscribe delivers every message published on subject to handler.
	Subscribe(subject string, handler func(subject string, data []byte)) (Subscription, error)
	Close() error
}

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe() error
}

// Dialer opens a transport. The context carries the connect timeout.
type Dialer func(ctx context.Context) (Transport, error)

// NATSTransport runs the optimizer session over a NATS connection.
type NATSTransport struct {
	conn   *natsclient.Conn
	logger *zap.Logger
}

// NewNATSTransport wraps an established connection.
func NewNATSTransport(conn *natsclient.Conn, logger *zap.Logger) *NATSTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSTransport{conn: conn, logger: logger}
}

// NATSDialer returns a Dialer connecting with config.
func NATSDialer(config *nats.ConnectionConfig, logger *zap.Logger) Dialer {
	return func(ctx context.Context) (Transport, error) {
		conn, err := nats.Connect(ctx, config, logger)
		if err != nil {
			return nil, err
		}
		return NewNATSTransport(conn, logger), nil
	}
}

// Request sends data and waits for the reply or ctx.
func (t *NATSTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := t.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("request on %s failed: %w", subject, err)
	}
	return msg.Data, nil
}

// Subscribe subscribes handler to subject.
func (t *NATSTransport) Subscribe(subject string, handler func(subject string, data []byte)) (Subscription, error) {
	sub, err := t.conn.Subscribe(subject, func(msg *natsclient.Msg) {
		handler(subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	t.logger.Info("Subscribed to optimizer topic", zap.String("subject", subject))
	return sub, nil
}

// Close drains and closes the connection.
func (t *NATSTransport) Close() error {
	return nats.Close(t.conn)
}
