package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/issueflow/internal/application/port"
	"github.com/garyjia/issueflow/internal/application/workflow"
	"github.com/garyjia/issueflow/internal/domain/entity"
	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	defaultWaitTimeout  = 5 * time.Second
)

// WorkflowRunner is the part of the runner the HTTP layer uses
type WorkflowRunner interface {
	Workflow() string
	Snapshot() workflow.Snapshot
	Submit(ctx context.Context, trigger domainwf.Trigger, source string) error
	FireSync(ctx context.Context, trigger domainwf.Trigger, source string) workflow.FireResult
}

// HealthFunc reports overall health and per-component details
type HealthFunc func() (healthy bool, details interface{})

// Handlers contains all HTTP request handlers
type Handlers struct {
	runner      WorkflowRunner
	history     port.TransitionRepository
	health      HealthFunc
	logger      Logger
	waitTimeout time.Duration
}

// HandlerOption configures the handlers
type HandlerOption func(*Handlers)

// WithWaitTimeout bounds how long ?wait=true waits for the trigger outcome.
// Non-positive values keep the default.
func WithWaitTimeout(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.waitTimeout = d
		}
	}
}

// NewHandlers creates a new Handlers instance. history and health may be nil.
func NewHandlers(runner WorkflowRunner, history port.TransitionRepository, health HealthFunc, logger Logger, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		runner:      runner,
		history:     history,
		health:      health,
		logger:      logger,
		waitTimeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// HistoryResponse is the journal page returned by ListHistory
type HistoryResponse struct {
	Workflow    string                     `json:"workflow"`
	Total       int64                      `json:"total"`
	Transitions []*entity.TransitionRecord `json:"transitions"`
}

// TriggerResponse describes the outcome of POST /api/workflow/triggers/:trigger
type TriggerResponse struct {
	Trigger       string `json:"trigger"`
	Queued        bool   `json:"queued"`
	State         string `json:"state,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ListHistoryRequest represents query parameters for the history listing
type ListHistoryRequest struct {
	Limit int `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if h.health != nil {
		healthy, details := h.health()
		response.Components = details
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// GetWorkflow handles GET /api/workflow
func (h *Handlers) GetWorkflow(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.runner.Snapshot(),
	})
}

// ListHistory handles GET /api/workflow/history
func (h *Handlers) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "transition journal is disabled",
		})
		return
	}

	var req ListHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil || req.Limit < 0 {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultHistoryLimit
	}
	if req.Limit > maxHistoryLimit {
		req.Limit = maxHistoryLimit
	}

	ctx := c.Request.Context()
	name := h.runner.Workflow()

	records, err := h.history.ListByWorkflow(ctx, name, req.Limit)
	if err != nil {
		h.logger.Error("Failed to list transitions", "workflow", name, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to list transitions",
		})
		return
	}

	total, err := h.history.CountByWorkflow(ctx, name)
	if err != nil {
		h.logger.Error("Failed to count transitions", "workflow", name, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to count transitions",
		})
		return
	}

	if records == nil {
		records = []*entity.TransitionRecord{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HistoryResponse{
			Workflow:    name,
			Total:       total,
			Transitions: records,
		},
	})
}

// FireTrigger handles POST /api/workflow/triggers/:trigger.
// The trigger is queued and 202 returned; with ?wait=true the handler waits
// for the outcome and answers 200, 409 when the transition is not allowed,
// or 504 when no outcome arrives within the wait timeout.
func (h *Handlers) FireTrigger(c *gin.Context) {
	trigger := domainwf.Trigger(c.Param("trigger"))
	ctx := c.Request.Context()

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		if err := h.runner.Submit(ctx, trigger, workflow.SourceHTTP); err != nil {
			h.respondError(c, trigger, err)
			return
		}

		h.logger.Info("Trigger queued", "trigger", trigger.String())
		c.JSON(http.StatusAccepted, Response{
			Success: true,
			Data:    TriggerResponse{Trigger: trigger.String(), Queued: true},
		})
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.waitTimeout)
	defer cancel()

	res := h.runner.FireSync(waitCtx, trigger, workflow.SourceHTTP)
	if res.Err != nil {
		h.respondError(c, trigger, res.Err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TriggerResponse{
			Trigger:       trigger.String(),
			State:         res.State.String(),
			CorrelationID: res.CorrelationID,
		},
	})
}

func (h *Handlers) respondError(c *gin.Context, trigger domainwf.Trigger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domainwf.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrRunnerStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case trigger == "":
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Trigger failed", "trigger", trigger.String(), "error", err)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
	})
}
