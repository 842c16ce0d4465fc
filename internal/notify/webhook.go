package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookConfig holds webhook backend parameters.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// WebhookBackend POSTs event payloads to a user-configured HTTP endpoint.
type WebhookBackend struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookBackend creates a WebhookBackend with the given config.
func NewWebhookBackend(cfg WebhookConfig) *WebhookBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *WebhookBackend) Name() string { return "webhook" }

func (b *WebhookBackend) Publish(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if b.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(b.cfg.Secret))
		mac.Write(payload)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Bucketd-Signature", sig)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *WebhookBackend) Close() error { return nil }
