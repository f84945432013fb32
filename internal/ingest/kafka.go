package ingest

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/logger"
	"wabridge/pkg/errors"
	"wabridge/pkg/logging"
	"wabridge/pkg/metrics"
	"wabridge/pkg/models"
	"wabridge/pkg/tracing"
)

const (
	sourceKafka       = "kafka"
	fetchErrorBackoff = time.Second
)

// kafkaReader is the part of *kafka.Reader the source uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// KafkaSource consumes the status, message and any-message topics with one
// consumer group reader. A record is committed once it has been queued.
type KafkaSource struct {
	reader kafkaReader
	kinds  map[string]models.EventKind
	sink   Submitter
	logger logger.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, sink Submitter, log logger.Logger) *KafkaSource {
	kinds := topicKinds(cfg)
	topics := make([]string, 0, len(kinds))
	for topic := range kinds {
		topics = append(topics, topic)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})

	return &KafkaSource{
		reader: reader,
		kinds:  kinds,
		sink:   sink,
		logger: log,
	}
}

func topicKinds(cfg config.KafkaConfig) map[string]models.EventKind {
	status := cfg.StatusTopic
	if status == "" {
		status = constants.DefaultStatusTopic
	}
	msg := cfg.MessageTopic
	if msg == "" {
		msg = constants.DefaultMessageTopic
	}
	anyMsg := cfg.AnyMessageTopic
	if anyMsg == "" {
		anyMsg = constants.DefaultAnyMessageTopic
	}

	return map[string]models.EventKind{
		status: models.EventKindStatus,
		msg:    models.EventKindMessage,
		anyMsg: models.EventKindAnyMessage,
	}
}

func (s *KafkaSource) Name() string {
	return sourceKafka
}

func (s *KafkaSource) Run(ctx context.Context) error {
	s.logger.Infow("Started consuming",
		"topics", s.reader.Config().GroupTopics,
		"group_id", s.reader.Config().GroupID,
	)

	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Infow("Stopped consuming", "reason", "context canceled")
				return nil
			}
			s.logger.Errorw("Error fetching kafka message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		if !s.process(ctx, m) {
			return nil
		}
	}
}

// process returns false when the source is shutting down and the record must
// stay uncommitted.
func (s *KafkaSource) process(ctx context.Context, m kafka.Message) bool {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m)
	defer span.End()

	env, err := DecodeEnvelope(m.Value, s.kinds[m.Topic], sourceKafka)
	if err != nil {
		s.logger.ErrorwCtx(msgCtx, "Failed to unmarshal message",
			"error", err,
			"topic", m.Topic,
			"offset", m.Offset,
		)
		s.commit(msgCtx, m)
		return true
	}
	msgCtx = logging.WithEventKind(msgCtx, string(env.Kind))
	if env.ID != "" {
		msgCtx = logging.WithMessageID(msgCtx, env.ID)
	}

	if err := s.sink.Submit(msgCtx, env); err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.IsValidation(err) {
			s.logger.WarnwCtx(msgCtx, "Dropping invalid event",
				"error", err,
				"topic", m.Topic,
			)
			s.commit(msgCtx, m)
			return true
		}
		s.logger.ErrorwCtx(msgCtx, "Failed to queue event",
			"error", err,
			"topic", m.Topic,
		)
		return true
	}

	metrics.IncIngestEvent(sourceKafka, string(env.Kind))
	s.commit(msgCtx, m)
	return true
}

func (s *KafkaSource) commit(ctx context.Context, m kafka.Message) {
	if err := s.reader.CommitMessages(ctx, m); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to commit message",
			"error", err,
			"topic", m.Topic,
		)
	}
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
