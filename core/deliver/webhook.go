package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "newsletterpipe/1.0"
)

// Webhook POSTs each notice as JSON to a URL. Deliveries run in the
// background; Close waits for the ones in flight.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
	wg         sync.WaitGroup
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithTimeout bounds each delivery attempt.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

// WithRetries sets how many times a failed delivery is retried. Default: 2.
func WithRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: defaultTimeout},
		maxRetries: 2,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// OnStageReady implements core.StageNotifier.
func (w *Webhook) OnStageReady(ctx context.Context, sessionID string, kind core.ArtifactKind, artifact any) {
	n := newNotice(sessionID, kind, artifact, w.now())
	ctx = context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Send(ctx, n); err != nil {
			w.logger.Error("webhook delivery failed", "session_id", sessionID, "stage", kind, "error", err)
		}
	}()
}

// Close waits for in-flight deliveries.
func (w *Webhook) Close() error {
	w.wg.Wait()
	return nil
}

// Send delivers n synchronously, retrying with backoff.
func (w *Webhook) Send(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", defaultUserAgent)

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook request failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
		w.logger.Warn("webhook bad status", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("webhook: retries exhausted: %w", lastErr)
}
