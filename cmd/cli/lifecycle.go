package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openarchive/retention-service/internal/app"
	"github.com/openarchive/retention-service/internal/lifecycle"
)

// lifecycleOps is the part of the lifecycle service the CLI drives
type lifecycleOps interface {
	Check(ctx context.Context) (*lifecycle.CheckResult, error)
	Report(ctx context.Context, daysAhead int) (*lifecycle.Report, error)
	MarkForReview(ctx context.Context, ids []string) (int64, error)
	ListApprovals(ctx context.Context, status lifecycle.ApprovalStatus) ([]lifecycle.Approval, error)
	ApproveDestruction(ctx context.Context, approvalID, actor string) (*lifecycle.Approval, error)
	RejectDestruction(ctx context.Context, approvalID, actor string) (*lifecycle.Approval, error)
}

type lifecycleRunner interface {
	RunOnce(ctx context.Context) (*lifecycle.RunSummary, error)
}

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Evaluate and act on document retention deadlines",
}

var lifecycleCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify documents without changing anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runLifecycleCheck(ctx, a.Lifecycle, out)
		})
	},
}

var lifecycleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one lifecycle pass under the cluster-wide lock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runLifecycleRun(ctx, a.Scheduler, out)
		})
	},
}

var (
	reportDaysAhead int
	reportOutput    string
)

var lifecycleReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print or export the lifecycle report",
	Long: `Build the lifecycle report. Without --output the report is printed as JSON.
An --output path ending in .xlsx writes a workbook, any other path writes JSON.`,
	Example: `  retention lifecycle report --days-ahead 90
  retention lifecycle report --output report.xlsx`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runLifecycleReport(ctx, a.Lifecycle, reportDaysAhead, reportOutput, out)
		})
	},
}

var lifecycleReviewCmd = &cobra.Command{
	Use:   "review <document-id>...",
	Short: "Move active documents to REVIEW",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			n, err := a.Lifecycle.MarkForReview(ctx, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Marked %d of %d documents for review\n", n, len(args))
			return nil
		})
	},
}

var approvalsStatus string

var lifecycleApprovalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List destruction approvals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := parseApprovalStatus(approvalsStatus)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runListApprovals(ctx, a.Lifecycle, status, out)
		})
	},
}

var approvalActor string

var lifecycleApproveCmd = &cobra.Command{
	Use:   "approve <approval-id>",
	Short: "Approve a destruction and move the document to DESTROY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runResolve(ctx, a.Lifecycle.ApproveDestruction, args[0], approvalActor, out)
		})
	},
}

var lifecycleRejectCmd = &cobra.Command{
	Use:   "reject <approval-id>",
	Short: "Reject a destruction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runResolve(ctx, a.Lifecycle.RejectDestruction, args[0], approvalActor, out)
		})
	},
}

func init() {
	lifecycleReportCmd.Flags().IntVar(&reportDaysAhead, "days-ahead", lifecycle.DefaultReportDaysAhead, "Report horizon in days")
	lifecycleReportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to a file (.xlsx or .json)")
	lifecycleApprovalsCmd.Flags().StringVar(&approvalsStatus, "status", "pending", "Filter by status (pending, approved, rejected, all)")
	for _, c := range []*cobra.Command{lifecycleApproveCmd, lifecycleRejectCmd} {
		c.Flags().StringVar(&approvalActor, "actor", defaultActor(), "Operator recorded on the approval")
	}

	lifecycleCmd.AddCommand(
		lifecycleCheckCmd,
		lifecycleRunCmd,
		lifecycleReportCmd,
		lifecycleReviewCmd,
		lifecycleApprovalsCmd,
		lifecycleApproveCmd,
		lifecycleRejectCmd,
	)
	rootCmd.AddCommand(lifecycleCmd)
}

func runLifecycleCheck(ctx context.Context, svc lifecycleOps, out io.Writer) error {
	res, err := svc.Check(ctx)
	if err != nil {
		return err
	}
	displayCheck(out, res)
	return nil
}

func runLifecycleRun(ctx context.Context, runner lifecycleRunner, out io.Writer) error {
	summary, err := runner.RunOnce(ctx)
	if errors.Is(err, lifecycle.ErrLockHeld) {
		fmt.Fprintln(out, "Another instance is running the lifecycle, nothing done")
		return nil
	}
	if err != nil {
		return err
	}
	displaySummary(out, summary)
	if summary.Failures > 0 {
		return fmt.Errorf("lifecycle run finished with %d failures", summary.Failures)
	}
	return nil
}

func runLifecycleReport(ctx context.Context, svc lifecycleOps, daysAhead int, output string, out io.Writer) error {
	report, err := svc.Report(ctx, daysAhead)
	if err != nil {
		return err
	}

	if output == "" {
		return writeJSON(out, report)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(output), ".xlsx") {
		err = report.WriteXLSX(f)
	} else {
		err = writeJSON(f, report)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(out, "Report written to %s\n", output)
	return nil
}

func runListApprovals(ctx context.Context, svc lifecycleOps, status lifecycle.ApprovalStatus, out io.Writer) error {
	approvals, err := svc.ListApprovals(ctx, status)
	if err != nil {
		return err
	}
	displayApprovals(out, approvals)
	return nil
}

func runResolve(ctx context.Context, fn func(context.Context, string, string) (*lifecycle.Approval, error), id, actor string, out io.Writer) error {
	approval, err := fn(ctx, id, actor)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Approval %s for document %s is %s\n", approval.ID, approval.DocumentID, approval.Status)
	return nil
}

func parseApprovalStatus(s string) (lifecycle.ApprovalStatus, error) {
	switch status := lifecycle.ApprovalStatus(s); status {
	case lifecycle.ApprovalPending, lifecycle.ApprovalApproved, lifecycle.ApprovalRejected:
		return status, nil
	case "", "all":
		return "", nil
	default:
		return "", fmt.Errorf("unknown approval status %q", s)
	}
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}

func displayCheck(out io.Writer, res *lifecycle.CheckResult) {
	fmt.Fprintf(out, "Checked %d documents at %s (%d skipped)\n\n", res.Checked, res.CheckedAt.Format(time.RFC3339), res.Skipped)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ACTION\tCOUNT\tDOCUMENTS")
	fmt.Fprintln(w, "------\t-----\t---------")
	fmt.Fprintf(w, "transfer\t%d\t%s\n", len(res.ToTransfer), joinIDs(res.ToTransfer))
	fmt.Fprintf(w, "destroy\t%d\t%s\n", len(res.ToDestroy), joinIDs(res.ToDestroy))
	fmt.Fprintf(w, "review\t%d\t%s\n", len(res.PendingReview), joinIDs(res.PendingReview))
	w.Flush()
}

func displaySummary(out io.Writer, s *lifecycle.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	fmt.Fprintln(w, "------\t-----")
	fmt.Fprintf(w, "checked\t%d\n", s.Checked)
	fmt.Fprintf(w, "skipped\t%d\n", s.Skipped)
	fmt.Fprintf(w, "queued for transfer\t%d/%d\n", s.QueuedForTransfer, s.ToTransfer)
	fmt.Fprintf(w, "scheduled for destruction\t%d\n", s.ScheduledDestroy)
	fmt.Fprintf(w, "approvals requested\t%d\n", s.ApprovalsRequested)
	fmt.Fprintf(w, "marked for review\t%d/%d\n", s.MarkedForReview, s.PendingReview)
	fmt.Fprintf(w, "failures\t%d\n", s.Failures)
	fmt.Fprintf(w, "duration\t%dms\n", s.DurationMs)
	w.Flush()

	for _, e := range s.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}

func displayApprovals(out io.Writer, approvals []lifecycle.Approval) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tDOCUMENT\tCATEGORY\tSTATUS\tREQUESTED\tRESOLVED BY")
	fmt.Fprintln(w, "--\t--------\t--------\t------\t---------\t-----------")
	for _, a := range approvals {
		by := "-"
		if a.ResolvedBy != nil {
			by = *a.ResolvedBy
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.DocumentID, a.RetentionCategory, a.Status, a.RequestedAt.Format(time.DateOnly), by)
	}
	w.Flush()
}

func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	const shown = 5
	if len(ids) > shown {
		return fmt.Sprintf("%s (+%d more)", strings.Join(ids[:shown], ", "), len(ids)-shown)
	}
	return strings.Join(ids, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
