package config

import (
	"fmt"
	"net/url"
	"strings"

	"wabridge/internal/constants"
	"wabridge/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateStatus(c.Status, c.Database) },
		func(c *Config) error { return validateDownstream(c.Downstream) },
		func(c *Config) error { return validateIngest(c.Ingest) },
		func(c *Config) error { return validatePipeline(c.Pipeline) },
		func(c *Config) error { return validateFiltering(c.Filtering) },
	}

	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateStatus(cfg StatusConfig, db DatabaseConfig) error {
	switch strings.ToLower(cfg.Store) {
	case constants.StoreTypeFile:
		if cfg.FilePath == "" {
			return &ValidationError{
				Field:   "status.file_path",
				Message: "file path is required for the file store",
			}
		}
	case constants.StoreTypeRedis:
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "Redis host is required for the redis store",
			}
		}
		if db.Redis.Port < 1 || db.Redis.Port > 65535 {
			return &ValidationError{
				Field:   "database.redis.port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", db.Redis.Port),
			}
		}
	default:
		return &ValidationError{
			Field:   "status.store",
			Message: fmt.Sprintf("unknown store type: %s (supported: file, redis)", cfg.Store),
		}
	}

	if cfg.ConfirmThreshold < 1 {
		return &ValidationError{
			Field:   "status.confirm_threshold",
			Message: "confirm threshold must be at least 1",
		}
	}

	if cfg.ConfirmationCeiling < cfg.ConfirmThreshold {
		return &ValidationError{
			Field:   "status.confirmation_ceiling",
			Message: "confirmation ceiling must be greater than or equal to confirm_threshold",
		}
	}

	for _, label := range cfg.AffirmativeLabels {
		for _, neg := range cfg.NegativeLabels {
			if label == neg {
				return &ValidationError{
					Field:   "status.negative_labels",
					Message: fmt.Sprintf("label %q cannot be both affirmative and negative", label),
				}
			}
		}
	}

	return nil
}

func validateDownstream(cfg DownstreamConfig) error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{
			Field:   "downstream.base_url",
			Message: fmt.Sprintf("invalid base url: %q", cfg.BaseURL),
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "downstream.timeout",
			Message: "timeout must be positive",
		}
	}

	if cfg.StartupDelay < 0 {
		return &ValidationError{
			Field:   "downstream.startup_delay",
			Message: "startup delay must be non-negative",
		}
	}

	return nil
}

func validateIngest(cfg IngestConfig) error {
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return &ValidationError{
				Field:   "ingest.kafka.brokers",
				Message: "at least one Kafka broker is required",
			}
		}
		for i, broker := range cfg.Kafka.Brokers {
			if broker == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("ingest.kafka.brokers[%d]", i),
					Message: "broker address cannot be empty",
				}
			}
		}
		if cfg.Kafka.GroupID == "" {
			return &ValidationError{
				Field:   "ingest.kafka.group_id",
				Message: "Kafka consumer group ID is required",
			}
		}
	}

	if cfg.WebSocket.Enabled {
		u, err := url.Parse(cfg.WebSocket.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return &ValidationError{
				Field:   "ingest.websocket.url",
				Message: "websocket url must start with ws:// or wss://",
			}
		}
		if cfg.WebSocket.Reconnect.Multiplier <= 0 {
			return &ValidationError{
				Field:   "ingest.websocket.reconnect.multiplier",
				Message: "multiplier must be positive",
			}
		}
	}

	return nil
}

func validatePipeline(cfg PipelineConfig) error {
	if cfg.QueueSize < 1 {
		return &ValidationError{
			Field:   "pipeline.queue_size",
			Message: "queue size must be positive",
		}
	}
	return nil
}

func validateFiltering(cfg FilteringConfig) error {
	var evaluator *cel.Evaluator
	for i, rule := range cfg.Rules {
		field := fmt.Sprintf("filtering.rules[%d].expression", i)
		if strings.TrimSpace(rule.Expression) == "" {
			return &ValidationError{Field: field, Message: "expression is required"}
		}
		if evaluator == nil {
			var err error
			if evaluator, err = cel.NewEvaluator(); err != nil {
				return &ValidationError{Field: field, Message: err.Error()}
			}
		}
		if err := evaluator.ValidateFilterExpression(rule.Expression); err != nil {
			return &ValidationError{Field: field, Message: err.Error()}
		}
	}

	switch cfg.Fallback.OnError {
	case "", constants.FallbackAllow, constants.FallbackDeny:
		return nil
	default:
		return &ValidationError{
			Field:   "filtering.fallback.on_error",
			Message: fmt.Sprintf("invalid value: %s (valid: allow, deny)", cfg.Fallback.OnError),
		}
	}
}
