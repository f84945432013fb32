package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"wabridge/pkg/models"
)

// Submitter accepts decoded envelopes. The pipeline dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, env models.EventEnvelope) error
}

// envelopeHead peeks at the keys that tell a full envelope from a bare
// payload. Bare statuses reuse "message" for a string override and raw chat
// messages carry a numeric "timestamp", so neither may hit EventEnvelope
// directly.
type envelopeHead struct {
	Kind    models.EventKind `json:"kind"`
	Status  json.RawMessage  `json:"status"`
	Message json.RawMessage  `json:"message"`
}

func (h envelopeHead) isEnvelope() bool {
	return h.Kind != "" || isObject(h.Status) || isObject(h.Message)
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// DecodeEnvelope parses one inbound frame. Frames may be full envelopes or,
// when defaultKind is known (e.g. from the Kafka topic), the bare status or
// message payload.
func DecodeEnvelope(data []byte, defaultKind models.EventKind, source string) (models.EventEnvelope, error) {
	var head envelopeHead
	if err := json.Unmarshal(data, &head); err != nil {
		return models.EventEnvelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	var env models.EventEnvelope
	if head.isEnvelope() {
		if err := json.Unmarshal(data, &env); err != nil {
			return models.EventEnvelope{}, fmt.Errorf("failed to decode envelope: %w", err)
		}
	}

	if env.Kind == "" {
		env.Kind = defaultKind
	}
	if env.Source == "" {
		env.Source = source
	}

	if !head.isEnvelope() {
		if err := decodeBare(data, &env); err != nil {
			return models.EventEnvelope{}, err
		}
	}

	return env, nil
}

func decodeBare(data []byte, env *models.EventEnvelope) error {
	switch env.Kind {
	case models.EventKindStatus:
		var signal models.StatusSignal
		if err := json.Unmarshal(data, &signal); err != nil {
			return fmt.Errorf("failed to decode status payload: %w", err)
		}
		if signal.Label != "" {
			env.Status = &signal
		}
	case models.EventKindMessage, models.EventKindAnyMessage:
		var raw models.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode message payload: %w", err)
		}
		if raw.From != "" {
			env.ID = raw.ID
			env.Message = &raw
		}
	}
	return nil
}
