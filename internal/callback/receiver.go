package callback

import (
	"context"
	"time"

	"wabridge/internal/logger"
	"wabridge/pkg/metrics"
)

// Event names sent by the downstream processor.
const (
	EventRecordCreated   = "despesa_criada"
	EventFileSaved       = "arquivo_salvo"
	EventProcessingError = "erro_processamento"
)

const AckReceived = "received"

type Request struct {
	Event string                 `json:"evento"`
	Data  map[string]interface{} `json:"dados"`
}

type Ack struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Receiver is a passive sink for downstream notifications. Every event is
// acknowledged.
type Receiver struct {
	logger logger.Logger
	now    func() time.Time
}

func NewReceiver(log logger.Logger) *Receiver {
	return &Receiver{logger: log, now: time.Now}
}

func (r *Receiver) Receive(ctx context.Context, event string, data map[string]interface{}) Ack {
	switch event {
	case EventRecordCreated:
		r.logger.InfowCtx(ctx, "Downstream created a record",
			"event", event,
			"amount", data["valor"],
			"category", data["categoria"],
		)
	case EventFileSaved:
		r.logger.InfowCtx(ctx, "Downstream saved a file",
			"event", event,
			"file_name", data["nome_arquivo"],
		)
	case EventProcessingError:
		r.logger.WarnwCtx(ctx, "Downstream reported a processing error",
			"event", event,
			"error", data["erro"],
		)
	default:
		r.logger.InfowCtx(ctx, "Downstream event received",
			"event", event,
			"data", data,
		)
	}

	metrics.IncCallback(metricLabel(event))

	return Ack{
		Status:    AckReceived,
		Timestamp: r.now().UTC().Format(time.RFC3339Nano),
	}
}

// metricLabel keeps label cardinality bounded for unknown event names.
func metricLabel(event string) string {
	switch event {
	case EventRecordCreated, EventFileSaved, EventProcessingError:
		return event
	default:
		return "other"
	}
}
