// Package notify delivers bulk messages and notifications to an
// external webhook endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guildhall-io/guildhall/pkg/observability"
)

// WebhookNotifier POSTs one JSON envelope per target user to a
// configured endpoint. Deliveries run on a bounded worker pool; a
// failed delivery does not stop the rest.
type WebhookNotifier struct {
	endpoint string
	workers  int
	client   *http.Client
	logger   *observability.Logger
}

type envelope struct {
	UserID  int64  `json:"user_id"`
	Payload string `json:"payload"`
}

// NewWebhookNotifier creates a notifier for the given endpoint.
// workers bounds concurrent deliveries; values below 1 are treated as 1.
func NewWebhookNotifier(endpoint string, workers int, logger *observability.Logger) *WebhookNotifier {
	if workers < 1 {
		workers = 1
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		workers:  workers,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Send delivers the payload to every target and returns how many
// deliveries succeeded. The returned error is non-nil only when no
// delivery went through.
func (n *WebhookNotifier) Send(ctx context.Context, targetUserIDs []int64, payload string) (int, error) {
	var delivered int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for _, userID := range targetUserIDs {
		userID := userID
		g.Go(func() error {
			if err := n.deliver(gctx, userID, payload); err != nil {
				if n.logger != nil {
					n.logger.WithError(err).WithField("user_id", userID).Warn("notification delivery failed")
				}
				return nil
			}
			atomic.AddInt64(&delivered, 1)
			return nil
		})
	}
	_ = g.Wait()

	sent := int(delivered)
	if sent == 0 && len(targetUserIDs) > 0 {
		return 0, fmt.Errorf("no notifications delivered to %s", n.endpoint)
	}
	return sent, nil
}

func (n *WebhookNotifier) deliver(ctx context.Context, userID int64, payload string) error {
	body, err := json.Marshal(envelope{UserID: userID, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
