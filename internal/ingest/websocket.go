package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wabridge/internal/config"
	"wabridge/internal/logger"
	"wabridge/pkg/errors"
	"wabridge/pkg/logging"
	"wabridge/pkg/metrics"
	"wabridge/pkg/retry"
)

const (
	sourceWebSocket         = "websocket"
	defaultHandshakeTimeout = 10 * time.Second
)

// WebSocketSource reads envelope frames pushed by the chat client bridge and
// reconnects with exponential backoff whenever the socket drops.
type WebSocketSource struct {
	url    string
	dialer *websocket.Dialer
	policy retry.Policy
	sink   Submitter
	logger logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocketSource(cfg config.WebSocketConfig, sink Submitter, log logger.Logger) *WebSocketSource {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}

	policy := retry.DefaultPolicy()
	if cfg.Reconnect.InitialInterval > 0 {
		policy.InitialInterval = cfg.Reconnect.InitialInterval
	}
	if cfg.Reconnect.MaxInterval > 0 {
		policy.MaxInterval = cfg.Reconnect.MaxInterval
	}
	if cfg.Reconnect.Multiplier > 0 {
		policy.Multiplier = cfg.Reconnect.Multiplier
	}

	return &WebSocketSource{
		url: cfg.URL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshake,
		},
		policy: policy,
		sink:   sink,
		logger: log,
	}
}

func (s *WebSocketSource) Name() string {
	return sourceWebSocket
}

// Run keeps a connection open until ctx is done. Each dial cycle starts with
// a fresh backoff so a long healthy session does not inherit old delays.
func (s *WebSocketSource) Run(ctx context.Context) error {
	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.logger.Infow("WebSocket bridge connected", "url", s.url)
		err = s.readLoop(ctx, conn)
		if ctx.Err() != nil {
			s.logger.Infow("WebSocket bridge stopped", "reason", "context canceled")
			return nil
		}
		s.logger.Warnw("WebSocket bridge disconnected, reconnecting",
			"error", err,
			"url", s.url,
		)
	}
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.RetryWithCallback(ctx, s.policy, func() error {
		c, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			return fmt.Errorf("failed to connect to websocket bridge: %w", err)
		}
		conn = c
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		s.logger.Warnw("WebSocket dial failed",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer s.closeConn(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		env, err := DecodeEnvelope(data, "", sourceWebSocket)
		if err != nil {
			s.logger.Errorw("Failed to unmarshal websocket frame", "error", err)
			continue
		}

		msgCtx := logging.WithEventKind(ctx, string(env.Kind))
		if err := s.sink.Submit(msgCtx, env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.IsValidation(err) {
				s.logger.WarnwCtx(msgCtx, "Dropping invalid event", "error", err)
				continue
			}
			s.logger.ErrorwCtx(msgCtx, "Failed to queue event", "error", err)
			continue
		}
		metrics.IncIngestEvent(sourceWebSocket, string(env.Kind))
	}
}

func (s *WebSocketSource) closeConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

// Close drops the current connection; Run returns once its context is done.
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
