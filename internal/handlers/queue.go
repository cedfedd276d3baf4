package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openarchive/retention-service/internal/taskqueue"
)

// ListTasksRequest represents query parameters for listing tasks
type ListTasksRequest struct {
	Status   string `form:"status" json:"status" jsonschema:"enum=pending,enum=processing,enum=completed,enum=failed"`
	TaskType string `form:"taskType" json:"taskType" jsonschema:"enum=DOCUMENT_ENRICHMENT,enum=OCR_PROCESSING,enum=LIFECYCLE_CHECK,enum=REDACTION,enum=TRANSFER_PREP"`
	Limit    int    `form:"limit" json:"limit" binding:"omitempty,min=1,max=500" jsonschema:"minimum=1,maximum=500"`
	Offset   int    `form:"offset" json:"offset" binding:"omitempty,min=0" jsonschema:"minimum=0"`
}

// ListTasksResponse represents the response for listing tasks
type ListTasksResponse struct {
	Tasks []taskqueue.Task `json:"tasks" jsonschema:"required"`
	Count int              `json:"count" jsonschema:"required"`
}

// EnqueueTaskRequest creates a task
type EnqueueTaskRequest struct {
	TaskType     string          `json:"taskType" binding:"required" jsonschema:"required,enum=DOCUMENT_ENRICHMENT,enum=OCR_PROCESSING,enum=LIFECYCLE_CHECK,enum=REDACTION,enum=TRANSFER_PREP"`
	Payload      json.RawMessage `json:"payload" swaggertype:"object" jsonschema:"description=Task payload; document tasks expect document_id"`
	Priority     int             `json:"priority"`
	ScheduledFor *time.Time      `json:"scheduledFor,omitempty"`
	MaxAttempts  int             `json:"maxAttempts" binding:"omitempty,min=1" jsonschema:"minimum=1"`
}

// EnqueueTaskResponse returns the id of a created task
type EnqueueTaskResponse struct {
	ID string `json:"id" jsonschema:"required"`
}

// CleanupRequest selects which terminal tasks to delete
type CleanupRequest struct {
	OlderThanDays *int `json:"olderThanDays" binding:"omitempty,min=0" jsonschema:"minimum=0"`
}

// CleanupResponse reports deleted tasks
type CleanupResponse struct {
	Deleted       int64 `json:"deleted" jsonschema:"required"`
	OlderThanDays int   `json:"olderThanDays" jsonschema:"required"`
}

// QueueStats returns queue counts
// @Summary Queue statistics
// @Description Returns task counts by status, with pending and processing broken down by type
// @Tags queue
// @Produce json
// @Success 200 {object} taskqueue.Stats
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/queue/stats [get]
func (h *Handler) QueueStats(c *gin.Context) {
	stats, err := h.Queue.Statistics(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to load queue statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListTasks returns a page of tasks, newest first
// @Summary List tasks
// @Description Returns tasks filtered by status and type, newest first
// @Tags queue
// @Produce json
// @Param status query string false "Filter by status" Enums(pending, processing, completed, failed)
// @Param taskType query string false "Filter by task type"
// @Param limit query int false "Number of items to return" default(100) minimum(1) maximum(500)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} ListTasksResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/queue/tasks [get]
func (h *Handler) ListTasks(c *gin.Context) {
	var req ListTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := taskqueue.ListFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		status := taskqueue.TaskStatus(req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + req.Status})
			return
		}
		filter.Status = status
	}
	if req.TaskType != "" {
		taskType, err := taskqueue.ParseTaskType(req.TaskType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.TaskType = taskType
	}

	tasks, err := h.Queue.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err, "Failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []taskqueue.Task{}
	}
	c.JSON(http.StatusOK, ListTasksResponse{Tasks: tasks, Count: len(tasks)})
}

// GetTask returns one task
// @Summary Get task
// @Tags queue
// @Produce json
// @Param taskId path string true "Task ID"
// @Success 200 {object} taskqueue.Task
// @Failure 404 {object} map[string]string "Task not found"
// @Router /internal/queue/tasks/{taskId} [get]
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.Queue.Get(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.fail(c, err, "Failed to load task")
		return
	}
	c.JSON(http.StatusOK, task)
}

// EnqueueTask creates a pending task
// @Summary Enqueue task
// @Description Creates a pending task. Omitted maxAttempts uses the configured default.
// @Tags queue
// @Accept json
// @Produce json
// @Param request body EnqueueTaskRequest true "Task"
// @Success 201 {object} EnqueueTaskResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Router /internal/queue/tasks [post]
func (h *Handler) EnqueueTask(c *gin.Context) {
	var req EnqueueTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	taskType, err := taskqueue.ParseTaskType(req.TaskType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := taskqueue.EnqueueInput{
		TaskType:     taskType,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		MaxAttempts:  req.MaxAttempts,
	}
	if len(req.Payload) > 0 {
		input.Payload = req.Payload
	}

	id, err := h.Queue.Enqueue(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err, "Failed to enqueue task")
		return
	}
	c.JSON(http.StatusCreated, EnqueueTaskResponse{ID: id})
}

// RetryTask gives a failed task a fresh attempt budget
// @Summary Retry failed task
// @Description Returns a failed task to pending with its attempts reset
// @Tags queue
// @Produce json
// @Param taskId path string true "Task ID"
// @Success 200 {object} taskqueue.Task
// @Failure 404 {object} map[string]string "Task not found"
// @Failure 409 {object} map[string]string "Task is not failed"
// @Router /internal/queue/tasks/{taskId}/retry [post]
func (h *Handler) RetryTask(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("taskId")

	if err := h.Queue.Requeue(ctx, id); err != nil {
		h.fail(c, err, "Failed to retry task")
		return
	}
	task, err := h.Queue.Get(ctx, id)
	if err != nil {
		h.fail(c, err, "Failed to load task")
		return
	}
	c.JSON(http.StatusOK, task)
}

// CleanupTasks deletes old completed and failed tasks
// @Summary Clean up tasks
// @Description Deletes completed and failed tasks not updated within olderThanDays
// @Tags queue
// @Accept json
// @Produce json
// @Param request body CleanupRequest false "Cleanup options"
// @Success 200 {object} CleanupResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Router /internal/queue/cleanup [post]
func (h *Handler) CleanupTasks(c *gin.Context) {
	var req CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	days := h.CleanupAfterDays
	if req.OlderThanDays != nil {
		days = *req.OlderThanDays
	}

	deleted, err := h.Queue.Cleanup(c.Request.Context(), days)
	if err != nil {
		h.fail(c, err, "Failed to clean up tasks")
		return
	}
	c.JSON(http.StatusOK, CleanupResponse{Deleted: deleted, OlderThanDays: days})
}
