package constants

import "time"

const (
	ServiceName = "bridge-service"
)

const (
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultStartupDelay = 5 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	WebhookPath = "/webhook"
	HealthPath  = "/health"
)

const (
	BroadcastSenderID = "status@broadcast"
	DefaultSenderName = "WhatsApp Contact"
	DefaultMimeType   = "application/octet-stream"
	DefaultSourceTag  = "wabridge"
)

const (
	StoreTypeFile  = "file"
	StoreTypeRedis = "redis"
)

const (
	DefaultStatusFile     = "data/static/status.json"
	DefaultStatusRedisKey = "wabridge:status"
	DefaultTimeZone       = "America/Sao_Paulo"
)

const (
	DefaultConfirmThreshold    = 2
	DefaultConfirmationCeiling = 3
)

const (
	DefaultQueueSize = 256
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	DefaultStatusTopic     = "wa_status_signals"
	DefaultMessageTopic    = "wa_messages"
	DefaultAnyMessageTopic = "wa_any_messages"
)
