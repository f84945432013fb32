package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Status         StatusConfig         `mapstructure:"status"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Downstream     DownstreamConfig     `mapstructure:"downstream"`
	Ingest         IngestConfig         `mapstructure:"ingest"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Filtering      FilteringConfig      `mapstructure:"filtering"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IngestToken protects the /events endpoints when set.
	IngestToken string `mapstructure:"ingest_token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StatusConfig struct {
	Store               string   `mapstructure:"store"` // "file" or "redis"
	FilePath            string   `mapstructure:"file_path"`
	RedisKey            string   `mapstructure:"redis_key"`
	TimeZone            string   `mapstructure:"time_zone"`
	ConfirmThreshold    int      `mapstructure:"confirm_threshold"`
	ConfirmationCeiling int      `mapstructure:"confirmation_ceiling"`
	AffirmativeLabels   []string `mapstructure:"affirmative_labels"`
	NegativeLabels      []string `mapstructure:"negative_labels"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DownstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
	SelfTestOnStartup bool          `mapstructure:"self_test_on_startup"`
	SourceTag         string        `mapstructure:"source_tag"`
	SelfTestFrom      string        `mapstructure:"self_test_from"`
}

type IngestConfig struct {
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	StatusTopic     string   `mapstructure:"status_topic"`
	MessageTopic    string   `mapstructure:"message_topic"`
	AnyMessageTopic string   `mapstructure:"any_message_topic"`
}

type WebSocketConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	Reconnect        RetryConfig   `mapstructure:"reconnect"`
}

type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type PipelineConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type FilteringConfig struct {
	Rules    []RuleConfig   `mapstructure:"rules"`
	Fallback FallbackConfig `mapstructure:"fallback"`
}

type RuleConfig struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"` // CEL expression that must evaluate to bool
}

type FallbackConfig struct {
	OnError string `mapstructure:"on_error"` // "allow" (default) or "deny"
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
