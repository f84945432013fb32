package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/config"
	"wabridge/internal/logger"
	"wabridge/pkg/errors"
	"wabridge/pkg/models"
)

type wsRecordingSink struct {
	mu     sync.Mutex
	events []models.EventEnvelope
}

func (s *wsRecordingSink) Submit(_ context.Context, env models.EventEnvelope) error {
	if !env.Kind.Valid() {
		return errors.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, env)
	return nil
}

func (s *wsRecordingSink) received() []models.EventEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EventEnvelope(nil), s.events...)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketSource_ReadsFramesAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		n := connections.Add(1)
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"status","status":{"label":"qrReadSuccess"}}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"typing"}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"message","message":{"from":"5511999887766@c.us","body":"hi"}}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sink := &wsRecordingSink{}
	source := NewWebSocketSource(config.WebSocketConfig{
		URL: wsURL(server),
		Reconnect: config.RetryConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
		},
	}, sink, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(sink.received()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	events := sink.received()
	assert.Equal(t, models.EventKindStatus, events[0].Kind)
	assert.Equal(t, "websocket", events[0].Source)
	assert.Equal(t, models.EventKindMessage, events[1].Kind)
	assert.GreaterOrEqual(t, connections.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket source did not stop")
	}
}

func TestWebSocketSource_StopsWhileDialing(t *testing.T) {
	sink := &wsRecordingSink{}
	source := NewWebSocketSource(config.WebSocketConfig{
		URL: "ws://127.0.0.1:1/bridge",
		Reconnect: config.RetryConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
		},
	}, sink, logger.NopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, source.Run(ctx))
	assert.Empty(t, sink.received())
	assert.NoError(t, source.Close())
}
