package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/openarchive/retention-service/internal/retention"
)

const DefaultReportDaysAhead = 180

// UpcomingAction is a document whose lifecycle deadline falls inside the
// report horizon. Overdue documents have negative DaysUntilDeadline.
type UpcomingAction struct {
	DocumentID        string                   `json:"document_id"`
	Title             string                   `json:"title"`
	Status            retention.DocumentStatus `json:"status"`
	RetentionCategory retention.Category       `json:"retention_category"`
	Action            string                   `json:"action"`
	Deadline          time.Time                `json:"deadline"`
	DaysUntilDeadline int                      `json:"days_until_deadline"`
}

type ReportSummary struct {
	DocumentsByStatus map[retention.DocumentStatus]int64 `json:"documents_by_status"`
	ToTransfer        int                                `json:"to_transfer"`
	ToDestroy         int                                `json:"to_destroy"`
	PendingReview     int                                `json:"pending_review"`
	PendingApprovals  int                                `json:"pending_approvals"`
}

type Report struct {
	GeneratedAt      time.Time        `json:"generated_at"`
	DaysAhead        int              `json:"days_ahead"`
	Summary          ReportSummary    `json:"summary"`
	UpcomingActions  []UpcomingAction `json:"upcoming_actions"`
	PendingApprovals []Approval       `json:"pending_approvals"`
}

// Report builds a lifecycle overview: status counts, the current
// classification, and documents whose deadline is within daysAhead.
func (s *Service) Report(ctx context.Context, daysAhead int) (*Report, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultReportDaysAhead
	}
	now := s.now()

	byStatus, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents by status: %w", err)
	}
	docs, err := s.store.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle candidates: %w", err)
	}
	approvals, err := s.store.ListApprovals(ctx, ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}

	res := s.evaluator.Evaluate(docs, now)
	report := &Report{
		GeneratedAt: now,
		DaysAhead:   daysAhead,
		Summary: ReportSummary{
			DocumentsByStatus: byStatus,
			ToTransfer:        len(res.ToTransfer),
			ToDestroy:         len(res.ToDestroy),
			PendingReview:     len(res.PendingReview),
			PendingApprovals:  len(approvals),
		},
		UpcomingActions:  s.upcoming(docs, now, daysAhead),
		PendingApprovals: approvals,
	}
	if report.PendingApprovals == nil {
		report.PendingApprovals = []Approval{}
	}
	return report, nil
}

func (s *Service) upcoming(docs []retention.Document, now time.Time, daysAhead int) []UpcomingAction {
	horizon := now.AddDate(0, 0, daysAhead)
	out := []UpcomingAction{}

	for _, doc := range docs {
		if doc.CreationDate == nil {
			continue
		}
		cat, err := retention.Normalize(doc.RetentionCategory)
		if err != nil {
			continue
		}

		var (
			deadline time.Time
			action   string
		)
		if cat.Permanent() {
			if s.cfg.Retention.PermanentTransferAfterYears <= 0 {
				continue
			}
			deadline = doc.CreationDate.AddDate(s.cfg.Retention.PermanentTransferAfterYears, 0, 0)
			action = "transfer"
		} else {
			deadline, _ = doc.EndDate()
			action = "destroy"
		}
		if deadline.After(horizon) {
			continue
		}

		out = append(out, UpcomingAction{
			DocumentID:        doc.ID,
			Title:             doc.Title,
			Status:            doc.Status,
			RetentionCategory: cat,
			Action:            action,
			Deadline:          deadline,
			DaysUntilDeadline: retention.DaysUntil(deadline, now),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// WriteXLSX renders the report as a workbook with Summary, Upcoming, and
// Approvals sheets.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	summaryRows := [][]any{
		{"Generated at", r.GeneratedAt.Format(time.RFC3339)},
		{"Horizon (days)", r.DaysAhead},
		{"To transfer", r.Summary.ToTransfer},
		{"To destroy", r.Summary.ToDestroy},
		{"Pending review", r.Summary.PendingReview},
		{"Pending approvals", r.Summary.PendingApprovals},
	}
	statuses := make([]string, 0, len(r.Summary.DocumentsByStatus))
	for st := range r.Summary.DocumentsByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		summaryRows = append(summaryRows, []any{"Documents " + st, r.Summary.DocumentsByStatus[retention.DocumentStatus(st)]})
	}
	if err := writeRows(f, "Summary", summaryRows); err != nil {
		return err
	}

	if _, err := f.NewSheet("Upcoming"); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	upcoming := [][]any{{"Document ID", "Title", "Status", "Category", "Action", "Deadline", "Days until deadline"}}
	for _, a := range r.UpcomingActions {
		upcoming = append(upcoming, []any{
			a.DocumentID, a.Title, string(a.Status), string(a.RetentionCategory),
			a.Action, a.Deadline.Format("2006-01-02"), a.DaysUntilDeadline,
		})
	}
	if err := writeRows(f, "Upcoming", upcoming); err != nil {
		return err
	}

	if _, err := f.NewSheet("Approvals"); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	approvals := [][]any{{"Approval ID", "Document ID", "Title", "Category", "Requested at", "Reason"}}
	for _, a := range r.PendingApprovals {
		approvals = append(approvals, []any{
			a.ID, a.DocumentID, a.DocumentTitle, string(a.RetentionCategory),
			a.RequestedAt.Format(time.RFC3339), a.Reason,
		})
	}
	if err := writeRows(f, "Approvals", approvals); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
