package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event types published by the server.
const (
	EventUploaded = "file.uploaded"
	EventDeleted  = "file.deleted"
)

// Event describes a completed storage operation.
type Event struct {
	Type   string    `json:"type"`
	Bucket string    `json:"bucket"`
	Path   string    `json:"path"`
	Size   int64     `json:"size,omitempty"`
	Time   time.Time `json:"time"`
}

// Backend is a notification delivery target.
type Backend interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Notifier publishes events to its configured backends. Delivery failures
// are logged and never propagate to the request path; with no backends it
// just logs the event. The zero value is not usable, construct with New.
type Notifier struct {
	backends []Backend
	logger   *slog.Logger
}

// New creates a Notifier over the given backends.
func New(logger *slog.Logger, backends ...Backend) *Notifier {
	return &Notifier{backends: backends, logger: logger}
}

// Publish fans the event out to every backend.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	n.logger.Info("storage event", "type", ev.Type, "bucket", ev.Bucket, "path", ev.Path, "size", ev.Size)

	if len(n.backends) == 0 {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshaling event", "error", err)
		return
	}
	for _, b := range n.backends {
		if err := b.Publish(ctx, payload); err != nil {
			n.logger.Error("publishing event", "backend", b.Name(), "error", err)
		}
	}
}

// Close closes all backends, returning the first error.
func (n *Notifier) Close() error {
	var first error
	for _, b := range n.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
