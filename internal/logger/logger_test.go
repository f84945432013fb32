package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"wabridge/internal/config"
	"wabridge/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" WARN "))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		log, err := New(config.LoggingConfig{Level: "info", Format: format})
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))
	log.(*SugaredLogger).SetServiceName("bridge-service")

	ctx := logging.WithMessageID(context.Background(), "msg-1")
	log.InfowCtx(ctx, "hello", "from", "5511@c.us")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "msg-1", fields["message_id"])
	assert.Equal(t, "bridge-service", fields["service_name"])
	assert.Equal(t, "5511@c.us", fields["from"])
}
