package bootstrap

import (
	"context"
	"fmt"

	"wabridge/internal/config"
	"wabridge/internal/ingest"
	"wabridge/internal/logger"
)

// Source is an inbound transport feeding the pipeline.
type Source interface {
	Name() string
	Run(ctx context.Context) error
	Close() error
}

type Base struct {
	Config  *config.Config
	Logger  logger.Logger
	Sources []Source
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitSources creates every ingest transport enabled in the config.
func (b *Base) InitSources(sink ingest.Submitter) {
	if b.Config.Ingest.Kafka.Enabled {
		b.Sources = append(b.Sources, ingest.NewKafkaSource(b.Config.Ingest.Kafka, sink, b.Logger))
	}
	if b.Config.Ingest.WebSocket.Enabled {
		b.Sources = append(b.Sources, ingest.NewWebSocketSource(b.Config.Ingest.WebSocket, sink, b.Logger))
	}
}

func (b *Base) ShutdownSources() []error {
	var errs []error
	for _, src := range b.Sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s source close error: %w", src.Name(), err))
		}
	}
	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownSources()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
