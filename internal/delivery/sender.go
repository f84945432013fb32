package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/message"
	"wabridge/pkg/circuitbreaker"
	"wabridge/pkg/errors"
	"wabridge/pkg/tracing"
)

// maxResponseBytes caps how much of a downstream reply is read.
const maxResponseBytes = 1 << 20

// Sender performs a single delivery attempt. Implementations never retry.
type Sender interface {
	Send(ctx context.Context, msg message.NormalizedMessage) (*Result, error)
	Health(ctx context.Context) error
}

type HTTPSender struct {
	client     *http.Client
	webhookURL string
	healthURL  string
	token      string
}

func NewHTTPSender(cfg config.DownstreamConfig) *HTTPSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	return &HTTPSender{
		client: &http.Client{
			Timeout:   timeout,
			Transport: tracing.Transport(http.DefaultTransport),
		},
		webhookURL: cfg.BaseURL + constants.WebhookPath,
		healthURL:  cfg.BaseURL + constants.HealthPath,
		token:      cfg.Token,
	}
}

func (s *HTTPSender) Send(ctx context.Context, msg message.NormalizedMessage) (*Result, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.ErrDeliveryFailed.WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.ErrDeliveryFailed.WithCause(fmt.Errorf("failed to read response: %w", err))
	}

	if !isSuccess(resp.StatusCode) {
		return nil, errors.ErrDeliveryFailed.
			WithDetail("status_code", resp.StatusCode).
			WithCause(fmt.Errorf("downstream returned status %d", resp.StatusCode))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.ErrDeliveryFailed.
			WithDetail("status_code", resp.StatusCode).
			WithCause(fmt.Errorf("malformed response: %w", err))
	}

	return resultFromBody(decoded), nil
}

func (s *HTTPSender) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("downstream health returned status %d", resp.StatusCode)
	}
	return nil
}

func isSuccess(code int) bool {
	return code >= constants.HTTPStatusOKMin && code < constants.HTTPStatusOKMax
}

// CircuitBreakerSender stops calling a failing downstream for a while. While
// open, deliveries fail fast and are dropped like any other failure.
type CircuitBreakerSender struct {
	next Sender
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerSender(next Sender, cfg config.CircuitBreakerConfig) *CircuitBreakerSender {
	return &CircuitBreakerSender{
		next: next,
		cb:   circuitbreaker.NewWrapper(circuitbreaker.FromConfig("downstream", cfg)),
	}
}

func (s *CircuitBreakerSender) Send(ctx context.Context, msg message.NormalizedMessage) (*Result, error) {
	out, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return s.next.Send(ctx, msg)
	})
	if err != nil {
		if circuitbreaker.Rejected(err) {
			return nil, errors.ErrServiceUnavailable.
				WithDetail("circuit_breaker", s.cb.Name()).
				WithCause(err)
		}
		return nil, err
	}
	return out.(*Result), nil
}

// Health bypasses the breaker so probes can observe recovery.
func (s *CircuitBreakerSender) Health(ctx context.Context) error {
	return s.next.Health(ctx)
}

func (s *CircuitBreakerSender) State() gobreaker.State {
	return s.cb.State()
}

// withTimeout bounds a single call when the caller's context has no deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
