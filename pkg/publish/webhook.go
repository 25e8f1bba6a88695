package publish

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// WebhookConfig describes the endpoint notified after a run.
type WebhookConfig struct {
	URL     string
	Method  string
	Headers map[string]string
	// Timeout bounds all attempts together.
	Timeout time.Duration
	// AuthType is one of none, bearer or api-key.
	AuthType  string
	AuthToken string
}

// Webhook posts JSON payloads and retries on transient failures.
type Webhook struct {
	httpClient  *http.Client
	config      *WebhookConfig
	retryConfig *RetryConfig
}

func NewWebhook(config *WebhookConfig, retryConfig *RetryConfig) *Webhook {
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}

	return &Webhook{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		config:      config,
		retryConfig: retryConfig,
	}
}

// Send delivers payload, which must already be encoded as JSON.
func (w *Webhook) Send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	logger := zerolog.Ctx(ctx)
	var lastErr error

	for attempt := 0; attempt <= w.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt, w.retryConfig)
			logger.Debug().Msgf("webhook retry %d/%d after %v", attempt, w.retryConfig.MaxRetries, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return eris.Wrapf(ctx.Err(), "webhook timed out after %d attempts", attempt)
			}
		}

		statusCode, err := w.sendRequest(ctx, payload)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			logger.Debug().Int("status", statusCode).Msg("webhook delivered")
			return nil
		}

		if err != nil {
			lastErr = eris.Wrapf(err, "attempt %d failed", attempt+1)
		} else {
			lastErr = eris.Errorf("attempt %d failed with status %d", attempt+1, statusCode)
		}

		if statusCode > 0 && !isRetryableStatus(statusCode) {
			return lastErr
		}
	}

	return eris.Wrapf(lastErr, "webhook failed after %d attempts", w.retryConfig.MaxRetries+1)
}

func (w *Webhook) sendRequest(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, w.config.Method, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	switch w.config.AuthType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+w.config.AuthToken)
	case "api-key":
		req.Header.Set("X-API-Key", w.config.AuthToken)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// drain the body so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
