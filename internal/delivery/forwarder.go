package delivery

import (
	"context"
	"sync"
	"time"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/logger"
	"wabridge/internal/message"
	"wabridge/pkg/errors"
	"wabridge/pkg/logging"
	"wabridge/pkg/metrics"
)

// Forwarder posts normalized messages downstream with at-most-once semantics:
// one attempt, failures are logged and the message is dropped.
type Forwarder struct {
	sender       Sender
	logger       logger.Logger
	timeout      time.Duration
	startupDelay time.Duration
	selfTestFrom string
	now          func() time.Time

	inFlight sync.WaitGroup
}

func NewForwarder(sender Sender, cfg config.DownstreamConfig, log logger.Logger) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	return &Forwarder{
		sender:       sender,
		logger:       log,
		timeout:      timeout,
		startupDelay: cfg.StartupDelay,
		selfTestFrom: cfg.SelfTestFrom,
		now:          time.Now,
	}
}

// Forward makes a single delivery attempt. It returns nil on any failure; the
// failure is logged, never returned.
func (f *Forwarder) Forward(ctx context.Context, msg message.NormalizedMessage) *Result {
	result, err := f.send(ctx, msg)
	if err != nil {
		f.logger.ErrorwCtx(ctx, "Failed to forward message",
			"error", err,
			"status_code", statusCode(err),
			"from", msg.From,
			"type", msg.Type,
		)
		return nil
	}

	f.logger.InfowCtx(ctx, "Message forwarded",
		"from", msg.From,
		"type", msg.Type,
		"success", result.Success,
		"record_created", result.RecordCreated,
	)
	return result
}

func (f *Forwarder) send(ctx context.Context, msg message.NormalizedMessage) (*Result, error) {
	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	result, err := f.sender.Send(ctx, msg)
	status := "ok"
	if err != nil {
		status = "failed"
		if errors.ToHTTPStatus(err) == errors.ErrServiceUnavailable.Status {
			status = "rejected"
		}
	}
	metrics.ObserveDelivery(time.Since(start), status)
	return result, err
}

// Dispatch forwards msg on its own goroutine and returns immediately. The
// detached call keeps ctx's values but not its cancellation.
func (f *Forwarder) Dispatch(ctx context.Context, msg message.NormalizedMessage) {
	detached := context.WithoutCancel(ctx)
	if msg.Metadata.MessageID != "" {
		detached = logging.WithMessageID(detached, msg.Metadata.MessageID)
	}

	f.inFlight.Add(1)
	metrics.DeliveriesInFlight.Inc()
	go func() {
		defer f.inFlight.Done()
		defer metrics.DeliveriesInFlight.Dec()
		defer func() {
			if r := recover(); r != nil {
				f.logger.ErrorwCtx(detached, "Recovered from panic during delivery",
					"error", errors.RecoverPanic(r),
					"from", msg.From,
				)
			}
		}()

		f.Forward(detached, msg)
	}()
}

// Wait blocks until every dispatched delivery has finished or ctx is done.
func (f *Forwarder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Forwarder) HealthProbe(ctx context.Context) bool {
	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.sender.Health(ctx); err != nil {
		f.logger.DebugwCtx(ctx, "Downstream health probe failed", "error", err)
		return false
	}
	return true
}

// SelfTest sends a synthetic message and waits for the outcome. An empty body
// uses the default manual test text.
func (f *Forwarder) SelfTest(ctx context.Context, body string) (*Result, error) {
	if body == "" {
		body = manualTestBody
	}
	msg := f.testMessage(manualTestSenderName, body, manualTestSource)

	result, err := f.send(ctx, msg)
	if err != nil {
		f.logger.WarnwCtx(ctx, "Self test delivery failed",
			"error", err,
			"status_code", statusCode(err),
		)
		var appErr *errors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrDeliveryFailed)
	}
	if !result.Success {
		return result, errors.ErrDeliveryFailed.WithDetail("message", "downstream reported failure")
	}
	return result, nil
}

// StartupSelfTest waits for the chat session to settle, then probes the
// downstream and, if healthy, sends one synthetic message.
func (f *Forwarder) StartupSelfTest(ctx context.Context) {
	if f.startupDelay > 0 {
		timer := time.NewTimer(f.startupDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	f.logger.InfowCtx(ctx, "Testing downstream integration")
	if !f.HealthProbe(ctx) {
		f.logger.WarnwCtx(ctx, "Downstream is not reachable, skipping startup self test")
		return
	}

	result := f.Forward(ctx, f.testMessage(selfTestSenderName, selfTestBody, selfTestSource))
	if result != nil && result.Success {
		f.logger.InfowCtx(ctx, "Downstream integration verified")
	}
}

func (f *Forwarder) testMessage(senderName, body, source string) message.NormalizedMessage {
	now := f.now()
	from := f.selfTestFrom
	return message.NormalizedMessage{
		From:      from,
		Sender:    message.Sender{Name: senderName},
		Type:      message.TypeText,
		Body:      body,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Metadata: message.Metadata{
			Source:        source,
			ChatID:        from,
			TimestampNode: now.UnixMilli(),
			MessageType:   "chat",
		},
	}
}

func statusCode(err error) interface{} {
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		if code, ok := appErr.Details["status_code"]; ok {
			return code
		}
	}
	return nil
}
