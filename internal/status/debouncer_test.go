package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/constants"
	"wabridge/internal/logger"
	"wabridge/pkg/models"
)

type memoryStore struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *memoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memoryStore) Load(_ context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return Record{}, ErrRecordNotFound
	}
	return s.records[len(s.records)-1], nil
}

func (s *memoryStore) writes() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestDebouncer(store Store) *Debouncer {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	return NewDebouncer(store, Options{
		Location: loc,
		Now:      func() time.Time { return fixedNow },
	}, logger.NopLogger())
}

func observeAll(d *Debouncer, labels ...string) []Decision {
	out := make([]Decision, 0, len(labels))
	for _, l := range labels {
		out = append(out, d.Observe(context.Background(), models.StatusSignal{Label: l}))
	}
	return out
}

func TestDebouncer_Classify(t *testing.T) {
	d := newTestDebouncer(&memoryStore{})

	tests := []struct {
		label string
		want  Class
	}{
		{"isLogged", ClassAffirmative},
		{"qrReadSuccess", ClassAffirmative},
		{"chatsAvailable", ClassAffirmative},
		{"clientInitialized", ClassAffirmative},
		{"notLogged", ClassNegative},
		{"browserClose", ClassNegative},
		{"qrReadFail", ClassNegative},
		{"qrCodeGenerated", ClassNegative},
		{"openBrowser", ClassIndeterminate},
		{"", ClassIndeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Classify(tt.label))
		})
	}
}

func TestDebouncer_SingleAffirmativeIsNotPersisted(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	decisions := observeAll(d, "isLogged")

	assert.False(t, decisions[0].Persisted)
	assert.Equal(t, 1, decisions[0].Confirmations)
	assert.Empty(t, store.writes())
}

func TestDebouncer_TwoAffirmativesPersistOnSecond(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	decisions := observeAll(d, "qrReadSuccess", "isLogged")

	assert.False(t, decisions[0].Persisted)
	assert.True(t, decisions[1].Persisted)
	assert.Equal(t, 2, decisions[1].Confirmations)

	writes := store.writes()
	require.Len(t, writes, 1)
	assert.True(t, writes[0].LoggedIn)
	assert.Equal(t, 2, writes[0].Confirmations)
	assert.Equal(t, MessageConnected, writes[0].Message)
}

func TestDebouncer_NegativePersistsImmediately(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	observeAll(d, "isLogged", "isLogged", "notLogged")

	writes := store.writes()
	require.Len(t, writes, 2)
	last := writes[1]
	assert.False(t, last.LoggedIn)
	assert.Equal(t, 1, last.Confirmations)
	assert.Equal(t, MessageDisconnected, last.Message)
}

// Every negative is written up to the ceiling, not every negative forever:
// an outage is reported at once and then stops churning the record.
func TestDebouncer_NegativesAreNotRewrittenPastCeiling(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	decisions := observeAll(d, "notLogged", "notLogged", "notLogged", "notLogged", "notLogged")

	writes := store.writes()
	require.Len(t, writes, 3)
	for i, w := range writes {
		assert.False(t, w.LoggedIn)
		assert.Equal(t, i+1, w.Confirmations)
	}
	assert.False(t, decisions[3].Persisted)
	assert.Equal(t, 5, decisions[4].Confirmations)
	assert.Equal(t, 5, d.Snapshot().Confirmations)
}

func TestDebouncer_RepeatedAffirmativesWriteAtTwoAndThree(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	observeAll(d, "isLogged", "isLogged", "isLogged", "isLogged")

	writes := store.writes()
	require.Len(t, writes, 2)
	assert.Equal(t, 2, writes[0].Confirmations)
	assert.Equal(t, 3, writes[1].Confirmations)
}

func TestDebouncer_IndeterminateChangesNothing(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	observeAll(d, "isLogged")
	before := d.Snapshot()

	decision := d.Observe(context.Background(), models.StatusSignal{Label: "desconnectedMobile"})

	assert.Equal(t, ClassIndeterminate, decision.Class)
	assert.False(t, decision.Persisted)
	assert.Equal(t, before, d.Snapshot())
	assert.Empty(t, store.writes())
}

func TestDebouncer_FlipResetsCounter(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	observeAll(d, "isLogged", "isLogged", "notLogged", "isLogged")

	snap := d.Snapshot()
	assert.True(t, snap.LastLoggedIn)
	assert.Equal(t, 1, snap.Confirmations)
	assert.Len(t, store.writes(), 2)
}

func TestDebouncer_SignalMessageOverridesDefault(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	d.Observe(context.Background(), models.StatusSignal{Label: "browserClose", Message: "browser closed by operator"})
	d.Observe(context.Background(), models.StatusSignal{Label: "qrCodeGenerated"})

	writes := store.writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "browser closed by operator", writes[0].Message)
	assert.Equal(t, MessageQRCodeGenerated, writes[1].Message)
}

func TestDebouncer_RecordDefaultsMessage(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	decision := d.Record(context.Background(), false, "")

	require.NotNil(t, decision.Record)
	assert.Equal(t, MessageDefaultLoggedOut, decision.Record.Message)
}

func TestDebouncer_RecordTimestamps(t *testing.T) {
	store := &memoryStore{}
	d := newTestDebouncer(store)

	decision := d.Record(context.Background(), false, "")

	require.NotNil(t, decision.Record)
	assert.Equal(t, fixedNow.UnixMilli(), decision.Record.Timestamp)
	// Sao Paulo is UTC-3 in March 2025.
	assert.Equal(t, "14/03/2025 12:09:26", decision.Record.LocalizedTimestamp)
}

func TestDebouncer_StoreFailureIsSwallowed(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	d := newTestDebouncer(store)

	decision := d.Observe(context.Background(), models.StatusSignal{Label: "notLogged"})

	assert.True(t, decision.Persisted)
	assert.Error(t, decision.PersistErr)
	assert.Equal(t, 1, d.Snapshot().Confirmations)

	store.err = nil
	decision = d.Observe(context.Background(), models.StatusSignal{Label: "notLogged"})
	assert.NoError(t, decision.PersistErr)
	assert.Len(t, store.writes(), 1)
}

func TestDebouncer_CustomLabelsAndThreshold(t *testing.T) {
	store := &memoryStore{}
	d := NewDebouncer(store, Options{
		AffirmativeLabels:   []string{"CONNECTED"},
		NegativeLabels:      []string{"DISCONNECTED"},
		ConfirmThreshold:    3,
		ConfirmationCeiling: 3,
	}, logger.NopLogger())

	assert.Equal(t, ClassIndeterminate, d.Classify("isLogged"))

	decisions := observeAll(d, "CONNECTED", "CONNECTED", "CONNECTED", "CONNECTED")
	assert.False(t, decisions[1].Persisted)
	assert.True(t, decisions[2].Persisted)
	assert.False(t, decisions[3].Persisted)
}

func TestDebouncer_ZeroOptionsUseDefaultCeiling(t *testing.T) {
	store := &memoryStore{}
	d := NewDebouncer(store, Options{}, logger.NopLogger())

	observeAll(d, "notLogged", "notLogged", "notLogged", "notLogged")

	require.Len(t, store.writes(), constants.DefaultConfirmationCeiling)
}

func TestDebouncer_CeilingNeverBelowThreshold(t *testing.T) {
	store := &memoryStore{}
	d := NewDebouncer(store, Options{ConfirmThreshold: 4}, logger.NopLogger())

	decisions := observeAll(d, "isLogged", "isLogged", "isLogged", "isLogged", "isLogged")

	assert.True(t, decisions[3].Persisted)
	assert.False(t, decisions[4].Persisted)
	assert.Len(t, store.writes(), 1)
}
