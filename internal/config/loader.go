package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wabridge/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.ingest_token", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("status.store", constants.StoreTypeFile)
	viper.SetDefault("status.file_path", constants.DefaultStatusFile)
	viper.SetDefault("status.redis_key", constants.DefaultStatusRedisKey)
	viper.SetDefault("status.time_zone", constants.DefaultTimeZone)
	viper.SetDefault("status.confirm_threshold", constants.DefaultConfirmThreshold)
	viper.SetDefault("status.confirmation_ceiling", constants.DefaultConfirmationCeiling)

	viper.SetDefault("database.redis.host", "")
	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.redis.password", "")
	viper.SetDefault("database.redis.db", 0)

	viper.SetDefault("downstream.base_url", "http://localhost:5000")
	viper.SetDefault("downstream.token", "")
	viper.SetDefault("downstream.timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("downstream.startup_delay", constants.DefaultStartupDelay)
	viper.SetDefault("downstream.self_test_on_startup", true)
	viper.SetDefault("downstream.source_tag", constants.DefaultSourceTag)
	viper.SetDefault("downstream.self_test_from", "5511999887766@c.us")

	viper.SetDefault("ingest.kafka.enabled", false)
	viper.SetDefault("ingest.kafka.group_id", "wabridge")
	viper.SetDefault("ingest.kafka.status_topic", constants.DefaultStatusTopic)
	viper.SetDefault("ingest.kafka.message_topic", constants.DefaultMessageTopic)
	viper.SetDefault("ingest.kafka.any_message_topic", constants.DefaultAnyMessageTopic)

	viper.SetDefault("ingest.websocket.enabled", false)
	viper.SetDefault("ingest.websocket.url", "")
	viper.SetDefault("ingest.websocket.handshake_timeout", 10*time.Second)
	viper.SetDefault("ingest.websocket.reconnect.initial_interval", time.Second)
	viper.SetDefault("ingest.websocket.reconnect.max_interval", 30*time.Second)
	viper.SetDefault("ingest.websocket.reconnect.multiplier", 2.0)

	viper.SetDefault("pipeline.queue_size", constants.DefaultQueueSize)

	viper.SetDefault("filtering.fallback.on_error", constants.FallbackAllow)

	viper.SetDefault("circuit_breaker.enabled", false)

	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.rps", 10.0)
	viper.SetDefault("rate_limit.burst", 20)
	viper.SetDefault("rate_limit.cleanup_interval", 5*time.Minute)
	viper.SetDefault("rate_limit.max_age", 10*time.Minute)

	viper.SetDefault("tracing.enabled", false)
}

func bindEnvVariables() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.ingest_token", "SERVER_INGEST_TOKEN")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")

	viper.BindEnv("status.store", "STATUS_STORE")
	viper.BindEnv("status.file_path", "STATUS_FILE_PATH")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")

	viper.BindEnv("downstream.base_url", "DOWNSTREAM_BASE_URL")
	viper.BindEnv("downstream.token", "DOWNSTREAM_TOKEN", "WEBHOOK_TOKEN")

	viper.BindEnv("ingest.kafka.brokers", "INGEST_KAFKA_BROKERS")
	viper.BindEnv("ingest.websocket.url", "INGEST_WEBSOCKET_URL")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("INGEST_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Ingest.Kafka.Brokers = brokers
		}
	}

	cfg.Downstream.BaseURL = strings.TrimRight(cfg.Downstream.BaseURL, "/")
}
