package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/callback"
	"wabridge/internal/delivery"
	"wabridge/internal/logger"
	"wabridge/internal/status"
	"wabridge/pkg/errors"
	"wabridge/pkg/health"
	"wabridge/pkg/models"
)

type fakeStore struct {
	record status.Record
	err    error
}

func (s fakeStore) Load(context.Context) (status.Record, error) {
	return s.record, s.err
}

type fakeSession struct{}

func (fakeSession) Snapshot() status.Snapshot {
	return status.Snapshot{LastLoggedIn: true, Confirmations: 2}
}

type fakeSelfTester struct {
	body   string
	result *delivery.Result
	err    error
}

func (f *fakeSelfTester) SelfTest(_ context.Context, body string) (*delivery.Result, error) {
	f.body = body
	return f.result, f.err
}

type fakeEvents struct {
	events []models.EventEnvelope
	err    error
}

func (f *fakeEvents) Submit(_ context.Context, env models.EventEnvelope) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, env)
	return nil
}

func (f *fakeEvents) QueueDepth() int { return len(f.events) }

type fakeHealth struct {
	status health.Status
}

func (f fakeHealth) Check(context.Context) health.Health {
	return health.Health{Status: f.status, Timestamp: time.Now(), Checks: map[string]health.CheckResult{}}
}

type testEnv struct {
	router   *gin.Engine
	selfTest *fakeSelfTester
	events   *fakeEvents
}

func newTestEnv(store StatusReader, healthStatus health.Status, ingestToken string) *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		router:   gin.New(),
		selfTest: &fakeSelfTester{result: &delivery.Result{Success: true, Body: map[string]interface{}{"success": true}}},
		events:   &fakeEvents{},
	}

	h := NewHandler(Dependencies{
		Store:     store,
		Session:   fakeSession{},
		SelfTest:  env.selfTest,
		Callbacks: callback.NewReceiver(logger.NopLogger()),
		Events:    env.events,
		Health:    fakeHealth{status: healthStatus},
	}, logger.NopLogger())
	h.now = func() time.Time { return time.UnixMilli(1741964966000) }
	h.RegisterRoutes(env.router, ingestToken)
	return env
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStatus_Persisted(t *testing.T) {
	env := newTestEnv(fakeStore{record: status.Record{LoggedIn: true, Message: "ok", Confirmations: 2, Timestamp: 1}}, health.StatusHealthy, "")

	w := env.do(http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["loggedIn"])
	assert.Equal(t, float64(2), body["confirmations"])
}

func TestStatus_NotFound(t *testing.T) {
	env := newTestEnv(fakeStore{err: status.ErrRecordNotFound}, health.StatusHealthy, "")

	w := env.do(http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["loggedIn"])
	assert.Equal(t, status.MessageNotFound, body["message"])
	assert.Equal(t, float64(1741964966000), body["timestamp"])
}

func TestStatus_ReadError(t *testing.T) {
	env := newTestEnv(fakeStore{err: assert.AnError}, health.StatusHealthy, "")

	w := env.do(http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusDegraded, "")
	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]interface{}{"lastLoggedIn": true, "confirmations": float64(2)}, body["session"])
	assert.Equal(t, float64(0), body["queue_depth"])

	env = newTestEnv(fakeStore{}, health.StatusUnhealthy, "")
	w = env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSelfTest(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusHealthy, "")

	w := env.do(http.MethodPost, "/self-test", `{"message":"coffee R$ 7,00"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "coffee R$ 7,00", env.selfTest.body)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]interface{}{"success": true}, body["result"])

	w = env.do(http.MethodPost, "/self-test", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", env.selfTest.body)

	w = env.do(http.MethodPost, "/self-test", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelfTest_Failure(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusHealthy, "")
	env.selfTest.result = nil
	env.selfTest.err = errors.ErrDeliveryFailed.WithDetail("status_code", 500)

	w := env.do(http.MethodPost, "/self-test", `{}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "DELIVERY_FAILED", body["error_code"])
}

func TestCallback(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusHealthy, "")

	w := env.do(http.MethodPost, "/callback", `{"evento":"despesa_criada","dados":{"valor":25.9,"categoria":"food"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, callback.AckReceived, decode(t, w)["status"])

	w = env.do(http.MethodPost, "/callback", `not json`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, callback.AckReceived, decode(t, w)["status"])
}

func TestSubmitStatus(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusHealthy, "")

	w := env.do(http.MethodPost, "/events/status", `{"label":"isLogged"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, env.events.events, 1)
	got := env.events.events[0]
	assert.Equal(t, models.EventKindStatus, got.Kind)
	assert.Equal(t, "http", got.Source)
	assert.Equal(t, "isLogged", got.Status.Label)
	assert.Equal(t, got.ID, decode(t, w)["id"])

	w = env.do(http.MethodPost, "/events/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitMessage(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusHealthy, "")

	w := env.do(http.MethodPost, "/events/message", `{"from":"5511999887766@c.us","body":"hi"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(http.MethodPost, "/events/message?feed=any_message", `{"from":"5511999887766@c.us","type":"image"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(http.MethodPost, "/events/message?feed=status", `{"from":"5511999887766@c.us"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Len(t, env.events.events, 2)
	assert.Equal(t, models.EventKindMessage, env.events.events[0].Kind)
	assert.Equal(t, models.EventKindAnyMessage, env.events.events[1].Kind)
}

func TestSubmit_QueueUnavailable(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusHealthy, "")
	env.events.err = context.DeadlineExceeded

	w := env.do(http.MethodPost, "/events/status", `{"label":"isLogged"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEvents_RequireToken(t *testing.T) {
	env := newTestEnv(fakeStore{}, health.StatusHealthy, "ingest-token")

	w := env.do(http.MethodPost, "/events/status", `{"label":"isLogged"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/events/status", `{"label":"isLogged"}`, "Authorization", "Bearer ingest-token")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
