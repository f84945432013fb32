package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wabridge/internal/config"
	"wabridge/internal/logger"
	"wabridge/pkg/retry"
)

// redisPingPolicy gives a redis container started alongside the bridge a
// few seconds to accept connections.
var redisPingPolicy = retry.Policy{
	MaxAttempts:     5,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	Multiplier:      2,
}

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	err := retry.RetryWithCallback(ctx, redisPingPolicy, func() error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, next time.Duration) {
		dc.Logger.Warnw("Redis not reachable yet", "attempt", attempt, "error", err, "retry_in", next)
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) ShutdownRedis(rdb *redis.Client) []error {
	if rdb == nil {
		return nil
	}
	if err := rdb.Close(); err != nil {
		return []error{fmt.Errorf("redis close error: %w", err)}
	}
	return nil
}
