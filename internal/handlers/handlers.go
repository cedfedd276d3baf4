package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openarchive/retention-service/internal/lifecycle"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

// QueueService is the task queue as seen by the operator API
type QueueService interface {
	Enqueue(ctx context.Context, input taskqueue.EnqueueInput) (string, error)
	Statistics(ctx context.Context) (*taskqueue.Stats, error)
	List(ctx context.Context, filter taskqueue.ListFilter) ([]taskqueue.Task, error)
	Get(ctx context.Context, id string) (*taskqueue.Task, error)
	Requeue(ctx context.Context, id string) error
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// LifecycleService is the retention lifecycle as seen by the operator API
type LifecycleService interface {
	Check(ctx context.Context) (*lifecycle.CheckResult, error)
	Report(ctx context.Context, daysAhead int) (*lifecycle.Report, error)
	MarkForReview(ctx context.Context, ids []string) (int64, error)
	ListApprovals(ctx context.Context, status lifecycle.ApprovalStatus) ([]lifecycle.Approval, error)
	ApproveDestruction(ctx context.Context, approvalID, actor string) (*lifecycle.Approval, error)
	RejectDestruction(ctx context.Context, approvalID, actor string) (*lifecycle.Approval, error)
}

// LifecycleRunner runs one lifecycle pass under the cross-instance lock
type LifecycleRunner interface {
	RunOnce(ctx context.Context) (*lifecycle.RunSummary, error)
}

// Pinger checks database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the operator API. Nil services leave their routes
// answering 503.
type Handler struct {
	Queue     QueueService
	Lifecycle LifecycleService
	Runner    LifecycleRunner
	DB        Pinger
	// CleanupAfterDays is the default age for POST /queue/cleanup.
	CleanupAfterDays int
	Logger           *zerolog.Logger
}

// RegisterRoutes mounts the operator endpoints on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.HealthCheck)

	queue := rg.Group("/queue")
	queue.Use(h.require(h.Queue != nil, "task queue"))
	{
		queue.GET("/stats", h.QueueStats)
		queue.GET("/tasks", h.ListTasks)
		queue.GET("/tasks/:taskId", h.GetTask)
		queue.POST("/tasks", h.EnqueueTask)
		queue.POST("/tasks/:taskId/retry", h.RetryTask)
		queue.POST("/cleanup", h.CleanupTasks)
	}

	lc := rg.Group("/lifecycle")
	lc.Use(h.require(h.Lifecycle != nil, "lifecycle"))
	{
		lc.GET("/check", h.LifecycleCheck)
		lc.POST("/run", h.LifecycleRun)
		lc.GET("/report", h.LifecycleReport)
		lc.POST("/review", h.MarkForReview)
		lc.GET("/approvals", h.ListApprovals)
		lc.POST("/approvals/:approvalId/approve", h.ApproveDestruction)
		lc.POST("/approvals/:approvalId/reject", h.RejectDestruction)
	}
}

func (h *Handler) require(ok bool, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ok {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": name + " not configured"})
			return
		}
		c.Next()
	}
}

func (h *Handler) logger() *zerolog.Logger {
	if h.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return h.Logger
}

// fail maps domain errors to status codes and logs unexpected ones
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, taskqueue.ErrNotFound), lifecycle.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, taskqueue.ErrInvalidTransition), errors.Is(err, lifecycle.ErrApprovalResolved),
		errors.Is(err, lifecycle.ErrDocumentState), errors.Is(err, lifecycle.ErrLockHeld):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, taskqueue.ErrUnknownTaskType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger().Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// actor identifies who resolved an approval
func actor(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if h := c.GetHeader("X-Actor"); h != "" {
		return h
	}
	return "operator"
}
