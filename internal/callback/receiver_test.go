package callback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"wabridge/internal/logger"
)

func newTestReceiver() (*Receiver, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewReceiver(logger.FromZap(zap.New(core)))
	r.now = func() time.Time { return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC) }
	return r, logs
}

func TestReceive(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		data    map[string]interface{}
		wantLog string
		wantKey string
		wantVal interface{}
	}{
		{
			name:    "record created",
			event:   EventRecordCreated,
			data:    map[string]interface{}{"valor": 25.9, "categoria": "food"},
			wantLog: "Downstream created a record",
			wantKey: "category",
			wantVal: "food",
		},
		{
			name:    "file saved",
			event:   EventFileSaved,
			data:    map[string]interface{}{"nome_arquivo": "receipt.pdf"},
			wantLog: "Downstream saved a file",
			wantKey: "file_name",
			wantVal: "receipt.pdf",
		},
		{
			name:    "processing error",
			event:   EventProcessingError,
			data:    map[string]interface{}{"erro": "ocr failed"},
			wantLog: "Downstream reported a processing error",
			wantKey: "error",
			wantVal: "ocr failed",
		},
		{
			name:    "unknown event",
			event:   "relatorio_gerado",
			data:    nil,
			wantLog: "Downstream event received",
			wantKey: "event",
			wantVal: "relatorio_gerado",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, logs := newTestReceiver()

			ack := r.Receive(context.Background(), tt.event, tt.data)

			assert.Equal(t, AckReceived, ack.Status)
			assert.Equal(t, "2025-03-14T15:09:26Z", ack.Timestamp)

			entries := logs.FilterMessage(tt.wantLog).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantVal, entries[0].ContextMap()[tt.wantKey])
		})
	}
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, EventFileSaved, metricLabel(EventFileSaved))
	assert.Equal(t, "other", metricLabel("anything"))
}
