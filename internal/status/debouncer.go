package status

import (
	"context"
	"sync"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/logger"
	"wabridge/pkg/metrics"
	"wabridge/pkg/models"
)

const localizedLayout = "02/01/2006 15:04:05"

type Options struct {
	AffirmativeLabels []string
	NegativeLabels    []string
	// ConfirmThreshold is the number of consecutive affirmative observations
	// needed before a logged-in state is written.
	ConfirmThreshold int
	// ConfirmationCeiling stops repeated identical observations from being
	// written again once the counter passes it.
	ConfirmationCeiling int
	Location            *time.Location
	Now                 func() time.Time
}

// Debouncer turns a noisy stream of session status labels into a stable,
// persisted Record. Negative states are written on first sight; affirmative
// states only once confirmed.
type Debouncer struct {
	store  Store
	logger logger.Logger
	opts   Options
	labels map[string]Class

	mu                 sync.Mutex
	lastClassification bool
	confirmationCount  int
}

func NewDebouncer(store Store, opts Options, log logger.Logger) *Debouncer {
	if len(opts.AffirmativeLabels) == 0 {
		opts.AffirmativeLabels = DefaultAffirmativeLabels
	}
	if len(opts.NegativeLabels) == 0 {
		opts.NegativeLabels = DefaultNegativeLabels
	}
	if opts.ConfirmThreshold < 1 {
		opts.ConfirmThreshold = constants.DefaultConfirmThreshold
	}
	if opts.ConfirmationCeiling < 1 {
		opts.ConfirmationCeiling = constants.DefaultConfirmationCeiling
	}
	if opts.ConfirmationCeiling < opts.ConfirmThreshold {
		opts.ConfirmationCeiling = opts.ConfirmThreshold
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	labels := make(map[string]Class, len(opts.AffirmativeLabels)+len(opts.NegativeLabels))
	for _, l := range opts.AffirmativeLabels {
		labels[l] = ClassAffirmative
	}
	for _, l := range opts.NegativeLabels {
		labels[l] = ClassNegative
	}
	if _, ok := labels[LabelClientInitialized]; !ok {
		labels[LabelClientInitialized] = ClassAffirmative
	}

	return &Debouncer{
		store:  store,
		logger: log,
		opts:   opts,
		labels: labels,
	}
}

func (d *Debouncer) Classify(label string) Class {
	if class, ok := d.labels[label]; ok {
		return class
	}
	return ClassIndeterminate
}

// Observe classifies a raw signal and, for recognized labels, advances the
// confirmation counter and writes the record when the policy allows it.
func (d *Debouncer) Observe(ctx context.Context, signal models.StatusSignal) Decision {
	class := d.Classify(signal.Label)
	metrics.IncStatusSignal(string(class))

	switch class {
	case ClassAffirmative:
		return d.Record(ctx, true, d.messageFor(signal, MessageConnected))
	case ClassNegative:
		return d.Record(ctx, false, d.messageFor(signal, MessageDisconnected))
	default:
		snap := d.Snapshot()
		d.logger.InfowCtx(ctx, "Intermediate status, keeping previous state",
			"label", signal.Label,
			"last_logged_in", snap.LastLoggedIn,
		)
		return Decision{
			Class:         ClassIndeterminate,
			LoggedIn:      snap.LastLoggedIn,
			Confirmations: snap.Confirmations,
		}
	}
}

// Record feeds an already-classified state through the debounce policy. An
// empty message falls back to the default text for loggedIn.
func (d *Debouncer) Record(ctx context.Context, loggedIn bool, message string) Decision {
	d.mu.Lock()
	if loggedIn == d.lastClassification {
		d.confirmationCount++
	} else {
		d.confirmationCount = 1
		d.lastClassification = loggedIn
	}
	count := d.confirmationCount
	d.mu.Unlock()

	class := ClassNegative
	if loggedIn {
		class = ClassAffirmative
	}

	decision := Decision{
		Class:         class,
		LoggedIn:      loggedIn,
		Confirmations: count,
		Persisted:     d.shouldPersist(loggedIn, count),
	}
	if !decision.Persisted {
		d.logger.DebugwCtx(ctx, "Status write suppressed",
			"logged_in", loggedIn,
			"confirmations", count,
		)
		return decision
	}

	if message == "" {
		message = MessageDefaultLoggedOut
		if loggedIn {
			message = MessageDefaultLoggedIn
		}
	}

	now := d.opts.Now()
	record := Record{
		LoggedIn:           loggedIn,
		Message:            message,
		Confirmations:      count,
		Timestamp:          now.UnixMilli(),
		LocalizedTimestamp: now.In(d.opts.Location).Format(localizedLayout),
	}
	decision.Record = &record

	if err := d.store.Save(ctx, record); err != nil {
		decision.PersistErr = err
		metrics.IncStatusWrite("error")
		d.logger.ErrorwCtx(ctx, "Failed to save status",
			"error", err,
			"logged_in", loggedIn,
			"confirmations", count,
		)
		return decision
	}

	metrics.IncStatusWrite("ok")
	metrics.SetLoggedIn(loggedIn)
	d.logger.InfowCtx(ctx, "Status saved",
		"logged_in", loggedIn,
		"confirmations", count,
		"message", message,
	)
	return decision
}

func (d *Debouncer) shouldPersist(loggedIn bool, count int) bool {
	if count > d.opts.ConfirmationCeiling {
		return false
	}
	return !loggedIn || count >= d.opts.ConfirmThreshold
}

func (d *Debouncer) messageFor(signal models.StatusSignal, fallback string) string {
	if signal.Message != "" {
		return signal.Message
	}
	if msg, ok := labelMessages[signal.Label]; ok {
		return msg
	}
	return fallback
}

func (d *Debouncer) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		LastLoggedIn:  d.lastClassification,
		Confirmations: d.confirmationCount,
	}
}
