package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/commerce-webhooks/webhook"
)

/* Forwarder is a webhook.Handler that hands events to a downstream service over HTTP
 * Requests carry Standard Webhooks headers so the receiver can verify them
 */
type Forwarder struct {
	url    string
	key    ForwardKey
	client *http.Client
	now    func() time.Time
}

// NewForwarder creates a forwarder. secret is the whsec_ FORWARD_SECRET shared with the receiver.
func NewForwarder(url, secret string, client *http.Client) (*Forwarder, error) {
	if url == "" {
		return nil, fmt.Errorf("forward url is required")
	}
	key, err := ParseForwardKey(secret)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Forwarder{url: url, key: key, client: client, now: time.Now}, nil
}

// Handle posts the delivery; any 2xx is success
func (f *Forwarder) Handle(ctx context.Context, d webhook.Delivery) webhook.Result {
	msgID := "msg_" + uuid.New().String()
	sentAt := f.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(d.Payload))
	if err != nil {
		return webhook.FailedWith(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", msgID)
	req.Header.Set("webhook-timestamp", strconv.FormatInt(sentAt, 10))
	req.Header.Set("webhook-signature", f.key.SignatureHeader(msgID, sentAt, d.Payload))
	req.Header.Set("X-Webhook-Topic", d.Topic.String())
	req.Header.Set("X-Tenant-Id", d.TenantID)
	req.Header.Set("X-Integration-Id", d.IntegrationID)
	req.Header.Set("X-Attempt", strconv.Itoa(d.Attempt))

	resp, err := f.client.Do(req)
	if err != nil {
		return webhook.FailedWith(fmt.Errorf("forwarding delivery: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return webhook.FailedWith(fmt.Errorf("forwarding delivery: status %d", resp.StatusCode))
	}
	return webhook.Succeeded()
}
