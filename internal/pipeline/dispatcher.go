package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wabridge/internal/constants"
	"wabridge/internal/logger"
	"wabridge/internal/message"
	"wabridge/internal/status"
	"wabridge/pkg/errors"
	"wabridge/pkg/logging"
	"wabridge/pkg/metrics"
	"wabridge/pkg/models"
	"wabridge/pkg/tracing"
)

type StatusObserver interface {
	Observe(ctx context.Context, signal models.StatusSignal) status.Decision
}

type MessageFilter interface {
	Allow(ctx context.Context, msg message.NormalizedMessage, rawType string) (bool, string)
}

type MessageDispatcher interface {
	Dispatch(ctx context.Context, msg message.NormalizedMessage)
}

// Dispatcher serializes every inbound event through one goroutine, so the
// status debouncer has a single writer. Deliveries are detached and do not
// hold up the loop.
type Dispatcher struct {
	queue      chan models.EventEnvelope
	debouncer  StatusObserver
	normalizer *message.Normalizer
	filter     MessageFilter
	forwarder  MessageDispatcher
	logger     logger.Logger
}

// NewDispatcher builds a dispatcher. filter may be nil.
func NewDispatcher(queueSize int, debouncer StatusObserver, normalizer *message.Normalizer, filter MessageFilter, forwarder MessageDispatcher, log logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = constants.DefaultQueueSize
	}

	return &Dispatcher{
		queue:      make(chan models.EventEnvelope, queueSize),
		debouncer:  debouncer,
		normalizer: normalizer,
		filter:     filter,
		forwarder:  forwarder,
		logger:     log,
	}
}

// Submit validates env and queues it, blocking until there is room or ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, env models.EventEnvelope) error {
	if err := validate(env); err != nil {
		return err
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	select {
	case d.queue <- env:
		metrics.SetPipelineQueueSize(len(d.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Run processes queued events until ctx is cancelled, then handles whatever
// is still queued before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Pipeline dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.logger.Info("Pipeline dispatcher stopped")
			return nil
		case env := <-d.queue:
			metrics.SetPipelineQueueSize(len(d.queue))
			d.handle(ctx, env)
		}
	}
}

// RunAfterProducers behaves like Run but keeps consuming after ctx is done
// until every producer in producers has returned. Events queued by an HTTP
// handler or ingest source while it winds down are still handled.
func (d *Dispatcher) RunAfterProducers(ctx context.Context, producers *sync.WaitGroup) error {
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	go func() {
		<-ctx.Done()
		producers.Wait()
		stop()
	}()

	return d.Run(runCtx)
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case env := <-d.queue:
			d.handle(ctx, env)
		default:
			metrics.SetPipelineQueueSize(0)
			return
		}
	}
}

// handle never lets a failure in one event escape into the loop.
func (d *Dispatcher) handle(ctx context.Context, env models.EventEnvelope) {
	ctx, span := tracing.StartEventSpan(ctx, string(env.Kind), env.ID, env.Source)
	defer span.End()

	ctx = logging.WithEventKind(ctx, string(env.Kind))
	if env.Message != nil && env.Message.ID != "" {
		ctx = logging.WithMessageID(ctx, env.Message.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorwCtx(ctx, "Recovered from panic while handling event",
				"error", errors.RecoverPanic(r),
				"event_id", env.ID,
				"source", env.Source,
			)
		}
	}()

	switch env.Kind {
	case models.EventKindStatus:
		d.handleStatus(ctx, *env.Status)
	case models.EventKindMessage:
		d.handleMessage(ctx, *env.Message)
	case models.EventKindAnyMessage:
		d.handleAnyMessage(ctx, *env.Message)
	}
}

func (d *Dispatcher) handleStatus(ctx context.Context, signal models.StatusSignal) {
	d.logger.DebugwCtx(ctx, "Status received", "label", signal.Label)
	d.debouncer.Observe(ctx, signal)
}

func (d *Dispatcher) handleMessage(ctx context.Context, raw models.RawMessage) {
	feed := string(models.EventKindMessage)

	if reason := message.Classify(raw); reason != message.ReasonAccepted {
		metrics.IncMessage(feed, string(reason))
		d.logger.DebugwCtx(ctx, "Message ignored",
			"reason", reason,
			"from", raw.From,
		)
		return
	}

	msg := d.normalizer.Normalize(raw)

	if d.filter != nil {
		if ok, rule := d.filter.Allow(ctx, msg, raw.Type); !ok {
			metrics.IncMessage(feed, string(message.ReasonFilteredByRules))
			d.logger.InfowCtx(ctx, "Message dropped by filtering rule",
				"rule_name", rule,
				"from", msg.From,
			)
			return
		}
	}

	metrics.IncMessage(feed, string(message.ReasonAccepted))
	d.logger.InfowCtx(ctx, "Valid message received",
		"from", msg.From,
		"type", msg.Type,
		"preview", preview(msg.Body),
	)
	d.forwarder.Dispatch(ctx, msg)
}

// handleAnyMessage covers the parallel feed that also carries pure media
// notifications. It is observed only; nothing is forwarded from it.
func (d *Dispatcher) handleAnyMessage(ctx context.Context, raw models.RawMessage) {
	feed := string(models.EventKindAnyMessage)

	if reason := message.Classify(raw); reason != message.ReasonAccepted {
		metrics.IncMessage(feed, string(reason))
		return
	}
	metrics.IncMessage(feed, string(message.ReasonAccepted))

	if !message.IsMediaType(raw.Type) {
		return
	}

	filename := "unnamed"
	if raw.MediaData != nil && raw.MediaData.Filename != "" {
		filename = raw.MediaData.Filename
	}
	d.logger.InfowCtx(ctx, "Valid media received",
		"type", raw.Type,
		"from", raw.From,
		"filename", filename,
	)
}

func validate(env models.EventEnvelope) error {
	if !env.Kind.Valid() {
		return errors.ErrValidation.WithDetail("message", "unknown event kind: "+string(env.Kind))
	}
	if env.Kind == models.EventKindStatus {
		if env.Status == nil {
			return errors.ErrValidation.WithDetail("message", "status event without status payload")
		}
		return nil
	}
	if env.Message == nil {
		return errors.ErrValidation.WithDetail("message", "message event without message payload")
	}
	return nil
}

const previewLength = 50

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength]) + "..."
}
