package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSBackend publishes event payloads to a NATS subject.
type NATSBackend struct {
	conn    *nats.Conn
	subject string
}

// NewNATSBackend connects to the NATS server at url.
func NewNATSBackend(url, subject string) (*NATSBackend, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	if subject == "" {
		subject = "bucketd.events"
	}
	return &NATSBackend{conn: conn, subject: subject}, nil
}

func (b *NATSBackend) Name() string { return "nats" }

func (b *NATSBackend) Publish(_ context.Context, payload []byte) error {
	return b.conn.Publish(b.subject, payload)
}

func (b *NATSBackend) Close() error {
	b.conn.Close()
	return nil
}
