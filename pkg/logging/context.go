package logging

import (
	"context"
)

type contextKey string

const (
	RequestIDKey   contextKey = "request_id"
	MessageIDKey   contextKey = "message_id"
	EventKindKey   contextKey = "event_kind"
	ServiceNameKey contextKey = "service_name"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithEventKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, EventKindKey, kind)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func getString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func GetMessageID(ctx context.Context) string {
	return getString(ctx, MessageIDKey)
}

func GetEventKind(ctx context.Context) string {
	return getString(ctx, EventKindKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, string(RequestIDKey), requestID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, string(MessageIDKey), messageID)
	}

	if kind := GetEventKind(ctx); kind != "" {
		fields = append(fields, string(EventKindKey), kind)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	return fields
}
