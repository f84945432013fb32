//go:build integration

package status

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	apperrors "wabridge/pkg/errors"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis uri: %v", err)
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		t.Fatalf("failed to ping redis: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	client := setupRedis(t)
	store := NewRedisStore(client, "test:status")
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.Save(ctx, Record{LoggedIn: false, Message: MessageDisconnected, Confirmations: 1}))
	require.NoError(t, store.Save(ctx, Record{LoggedIn: true, Message: MessageConnected, Confirmations: 2}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.LoggedIn)
	assert.Equal(t, 2, loaded.Confirmations)

	ttl, err := client.TTL(ctx, "test:status").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}
