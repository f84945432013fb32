package api

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wabridge/internal/callback"
	"wabridge/internal/delivery"
	"wabridge/internal/logger"
	"wabridge/internal/status"
	"wabridge/pkg/errors"
	"wabridge/pkg/health"
	"wabridge/pkg/middleware"
	"wabridge/pkg/models"
)

type StatusReader interface {
	Load(ctx context.Context) (status.Record, error)
}

type SessionSnapshotter interface {
	Snapshot() status.Snapshot
}

type SelfTester interface {
	SelfTest(ctx context.Context, body string) (*delivery.Result, error)
}

type CallbackReceiver interface {
	Receive(ctx context.Context, event string, data map[string]interface{}) callback.Ack
}

type EventSubmitter interface {
	Submit(ctx context.Context, env models.EventEnvelope) error
	QueueDepth() int
}

type HealthChecker interface {
	Check(ctx context.Context) health.Health
}

type Dependencies struct {
	Store     StatusReader
	Session   SessionSnapshotter
	SelfTest  SelfTester
	Callbacks CallbackReceiver
	Events    EventSubmitter
	Health    HealthChecker
}

type Handler struct {
	deps   Dependencies
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(deps Dependencies, log logger.Logger) *Handler {
	return &Handler{deps: deps, logger: log, now: time.Now}
}

// RegisterRoutes mounts the operator surface. protect guards the endpoints
// that trigger outbound work or inject events.
func (h *Handler) RegisterRoutes(router *gin.Engine, ingestToken string, protect ...gin.HandlerFunc) {
	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/callback", h.Callback)

	guarded := router.Group("", protect...)
	guarded.POST("/self-test", h.SelfTest)

	events := guarded.Group("/events", middleware.BearerAuth(ingestToken))
	{
		events.POST("/status", h.SubmitStatus)
		events.POST("/message", h.SubmitMessage)
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

type healthResponse struct {
	health.Health
	Session    status.Snapshot `json:"session"`
	QueueDepth int             `json:"queue_depth"`
}

func (h *Handler) Health(c *gin.Context) {
	result := h.deps.Health.Check(c.Request.Context())

	code := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, healthResponse{
		Health:     result,
		Session:    h.deps.Session.Snapshot(),
		QueueDepth: h.deps.Events.QueueDepth(),
	})
}

// Status returns the persisted record, or a logged-out placeholder when none
// has been written yet.
func (h *Handler) Status(c *gin.Context) {
	record, err := h.deps.Store.Load(c.Request.Context())
	if err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusOK, gin.H{
				"loggedIn":  false,
				"timestamp": h.now().UnixMilli(),
				"message":   status.MessageNotFound,
			})
			return
		}
		h.HandleError(c, errors.ErrInternal.WithDetail("message", "failed to read status").WithCause(err))
		return
	}
	c.JSON(http.StatusOK, record)
}

type selfTestRequest struct {
	Message string `json:"message"`
}

func (h *Handler) SelfTest(c *gin.Context) {
	var req selfTestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.deps.SelfTest.SelfTest(c.Request.Context(), req.Message)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Test sent successfully",
		"result":  result.Body,
	})
}

// Callback always acknowledges, even when the body cannot be parsed.
func (h *Handler) Callback(c *gin.Context) {
	var req callback.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnwCtx(c.Request.Context(), "Malformed callback body", "error", err)
	}

	c.JSON(http.StatusOK, h.deps.Callbacks.Receive(c.Request.Context(), req.Event, req.Data))
}

func (h *Handler) SubmitStatus(c *gin.Context) {
	var signal models.StatusSignal
	if err := c.ShouldBindJSON(&signal); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if signal.Label == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("message", "label is required")))
		return
	}

	h.submit(c, models.EventEnvelope{
		Kind:   models.EventKindStatus,
		Status: &signal,
	})
}

// SubmitMessage accepts a raw chat message. ?feed=any_message routes it to
// the observe-only feed.
func (h *Handler) SubmitMessage(c *gin.Context) {
	var raw models.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	kind := models.EventKindMessage
	if feed := c.Query("feed"); feed != "" {
		kind = models.EventKind(feed)
		if kind != models.EventKindMessage && kind != models.EventKindAnyMessage {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("message", "invalid feed: "+feed)))
			return
		}
	}

	h.submit(c, models.EventEnvelope{
		Kind:    kind,
		Message: &raw,
	})
}

func (h *Handler) submit(c *gin.Context, env models.EventEnvelope) {
	env.ID = uuid.NewString()
	env.Source = "http"
	env.Timestamp = h.now().UTC()

	if err := h.deps.Events.Submit(c.Request.Context(), env); err != nil {
		if !errors.IsValidation(err) {
			err = errors.ErrServiceUnavailable.WithDetail("message", "event queue unavailable").WithCause(err)
		}
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": true,
		"id":       env.ID,
	})
}
