package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"wabridge/internal/config"
	"wabridge/pkg/metrics"
)

type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	ReadyToTrip   func(counts gobreaker.Counts) bool
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.5
		},
		IsSuccessful: ignoreCancellation,
	}
}

// FromConfig overlays the non-zero values of cfg on DefaultConfig(name).
func FromConfig(name string, cfg config.CircuitBreakerConfig) Config {
	cbConfig := DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		}
	}
	return cbConfig
}

// ignoreCancellation keeps our own shutdown from counting against the
// downstream.
func ignoreCancellation(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// Wrapper is a gobreaker circuit that reports its state and traffic to
// prometheus.
type Wrapper struct {
	cb *gobreaker.CircuitBreaker
}

func NewWrapper(cfg Config) *Wrapper {
	settings := gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  cfg.ReadyToTrip,
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			setStateMetric(name, to)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	setStateMetric(cfg.Name, cb.State())

	return &Wrapper{cb: cb}
}

// Execute runs fn unless ctx is already done or the circuit rejects the call.
// Every outcome is counted.
func (w *Wrapper) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := w.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	w.record(err)
	return out, err
}

// Rejected reports whether err came from the circuit itself rather than fn.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (w *Wrapper) State() gobreaker.State {
	return w.cb.State()
}

func (w *Wrapper) Counts() gobreaker.Counts {
	return w.cb.Counts()
}

func (w *Wrapper) Name() string {
	return w.cb.Name()
}

func (w *Wrapper) IsOpen() bool {
	return w.cb.State() == gobreaker.StateOpen
}

func (w *Wrapper) record(err error) {
	metrics.CircuitBreakerRequests.WithLabelValues(w.cb.Name(), w.cb.State().String()).Inc()
	if err != nil && !Rejected(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(w.cb.Name()).Inc()
	}
}

func setStateMetric(name string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(value)
}
