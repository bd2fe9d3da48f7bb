package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goodtune/usagereporter/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

const contentType = "application/json; charset=utf-8"

// ErrDeliveryFailure is matched by every DeliveryError.
var ErrDeliveryFailure = errors.New("webhook delivery failed")

// DeliveryError describes a failed POST: either a non-2xx response or a
// transport error.
type DeliveryError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return "webhook delivery failed: " + e.Err.Error()
	}
	return fmt.Sprintf("webhook delivery failed: server responded %s", e.Status)
}

// Is lets errors.Is match ErrDeliveryFailure.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailure
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type payload struct {
	Text string `json:"text"`
}

// Client posts messages to an incoming webhook. It never retries.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// Config holds client configuration
type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper // nil uses http.DefaultTransport
}

// NewClient creates a webhook client
func NewClient(config Config, logger zerolog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

// Deliver validates destination and POSTs {"text": text} to it once.
func (c *Client) Deliver(ctx context.Context, destination, text string) error {
	target, err := Validate(destination)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload{Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.DeliveryDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		c.logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("Webhook request failed")
		return &DeliveryError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.DeliveryDuration.WithLabelValues("rejected").Observe(elapsed.Seconds())
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("Webhook rejected message")
		return &DeliveryError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	metrics.DeliveryDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	c.logger.Debug().
		Int("status_code", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("Webhook delivered")

	return nil
}
