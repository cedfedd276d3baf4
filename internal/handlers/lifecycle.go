package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openarchive/retention-service/internal/lifecycle"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportRequest represents query parameters for the lifecycle report
type ReportRequest struct {
	DaysAhead int    `form:"daysAhead" json:"daysAhead" binding:"omitempty,min=1,max=3650" jsonschema:"minimum=1,maximum=3650"`
	Format    string `form:"format" json:"format" binding:"omitempty,oneof=json xlsx" jsonschema:"enum=json,enum=xlsx"`
}

// ReviewRequest lists documents to move to REVIEW
type ReviewRequest struct {
	DocumentIDs []string `json:"documentIds" binding:"required,min=1" jsonschema:"required,minItems=1"`
}

// ReviewResponse reports how many documents changed
type ReviewResponse struct {
	Updated int64 `json:"updated" jsonschema:"required"`
}

// ApprovalsResponse wraps a list of approvals
type ApprovalsResponse struct {
	Approvals []lifecycle.Approval `json:"approvals" jsonschema:"required"`
	Count     int                  `json:"count" jsonschema:"required"`
}

// ResolveApprovalRequest names the operator resolving an approval
type ResolveApprovalRequest struct {
	Actor string `json:"actor"`
}

// LifecycleCheck classifies documents without acting on them
// @Summary Lifecycle dry run
// @Description Classifies candidate documents into transfer, destroy and review lists without changing anything
// @Tags lifecycle
// @Produce json
// @Success 200 {object} lifecycle.CheckResult
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/lifecycle/check [get]
func (h *Handler) LifecycleCheck(c *gin.Context) {
	res, err := h.Lifecycle.Check(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to check lifecycle")
		return
	}
	c.JSON(http.StatusOK, res)
}

// LifecycleRun triggers a lifecycle pass
// @Summary Run lifecycle
// @Description Runs one lifecycle pass. Returns 409 when another instance holds the lifecycle lock.
// @Tags lifecycle
// @Produce json
// @Success 200 {object} lifecycle.RunSummary
// @Failure 409 {object} map[string]string "Run already in progress"
// @Failure 503 {object} map[string]string "Runner not configured"
// @Router /internal/lifecycle/run [post]
func (h *Handler) LifecycleRun(c *gin.Context) {
	if h.Runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lifecycle runner not configured"})
		return
	}
	summary, err := h.Runner.RunOnce(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Lifecycle run failed")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// LifecycleReport returns the lifecycle overview
// @Summary Lifecycle report
// @Description Status counts, current classification and upcoming deadlines. format=xlsx returns a workbook.
// @Tags lifecycle
// @Produce json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param daysAhead query int false "Report horizon in days" default(180) minimum(1) maximum(3650)
// @Param format query string false "Output format" Enums(json, xlsx)
// @Success 200 {object} lifecycle.Report
// @Failure 400 {object} map[string]string "Bad request"
// @Router /internal/lifecycle/report [get]
func (h *Handler) LifecycleReport(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.Lifecycle.Report(c.Request.Context(), req.DaysAhead)
	if err != nil {
		h.fail(c, err, "Failed to build lifecycle report")
		return
	}

	if req.Format != "xlsx" {
		c.JSON(http.StatusOK, report)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf); err != nil {
		h.fail(c, err, "Failed to render lifecycle report")
		return
	}
	filename := fmt.Sprintf("lifecycle-report-%s.xlsx", report.GeneratedAt.Format(time.DateOnly))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// MarkForReview moves documents to REVIEW
// @Summary Mark documents for review
// @Tags lifecycle
// @Accept json
// @Produce json
// @Param request body ReviewRequest true "Documents"
// @Success 200 {object} ReviewResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Router /internal/lifecycle/review [post]
func (h *Handler) MarkForReview(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.Lifecycle.MarkForReview(c.Request.Context(), req.DocumentIDs)
	if err != nil {
		h.fail(c, err, "Failed to mark documents for review")
		return
	}
	c.JSON(http.StatusOK, ReviewResponse{Updated: n})
}

// ListApprovals returns destruction approvals
// @Summary List destruction approvals
// @Tags lifecycle
// @Produce json
// @Param status query string false "Filter by status" Enums(pending, approved, rejected)
// @Success 200 {object} ApprovalsResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Router /internal/lifecycle/approvals [get]
func (h *Handler) ListApprovals(c *gin.Context) {
	status := lifecycle.ApprovalStatus(c.Query("status"))
	switch status {
	case "", lifecycle.ApprovalPending, lifecycle.ApprovalApproved, lifecycle.ApprovalRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown approval status " + string(status)})
		return
	}

	approvals, err := h.Lifecycle.ListApprovals(c.Request.Context(), status)
	if err != nil {
		h.fail(c, err, "Failed to list approvals")
		return
	}
	if approvals == nil {
		approvals = []lifecycle.Approval{}
	}
	c.JSON(http.StatusOK, ApprovalsResponse{Approvals: approvals, Count: len(approvals)})
}

// ApproveDestruction approves a pending destruction
// @Summary Approve destruction
// @Description Resolves the approval and moves the document to DESTROY
// @Tags lifecycle
// @Accept json
// @Produce json
// @Param approvalId path string true "Approval ID"
// @Param request body ResolveApprovalRequest false "Actor"
// @Success 200 {object} lifecycle.Approval
// @Failure 404 {object} map[string]string "Approval not found"
// @Failure 409 {object} map[string]string "Approval already resolved"
// @Router /internal/lifecycle/approvals/{approvalId}/approve [post]
func (h *Handler) ApproveDestruction(c *gin.Context) {
	h.resolve(c, h.Lifecycle.ApproveDestruction)
}

// RejectDestruction rejects a pending destruction
// @Summary Reject destruction
// @Tags lifecycle
// @Accept json
// @Produce json
// @Param approvalId path string true "Approval ID"
// @Param request body ResolveApprovalRequest false "Actor"
// @Success 200 {object} lifecycle.Approval
// @Failure 404 {object} map[string]string "Approval not found"
// @Failure 409 {object} map[string]string "Approval already resolved"
// @Router /internal/lifecycle/approvals/{approvalId}/reject [post]
func (h *Handler) RejectDestruction(c *gin.Context) {
	h.resolve(c, h.Lifecycle.RejectDestruction)
}

func (h *Handler) resolve(c *gin.Context, fn func(ctx context.Context, approvalID, actor string) (*lifecycle.Approval, error)) {
	var req ResolveApprovalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	approval, err := fn(c.Request.Context(), c.Param("approvalId"), actor(c, req.Actor))
	if err != nil {
		h.fail(c, err, "Failed to resolve approval")
		return
	}
	c.JSON(http.StatusOK, approval)
}
