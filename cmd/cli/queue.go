package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openarchive/retention-service/internal/app"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

// queueOps is the part of the task queue the CLI drives
type queueOps interface {
	Enqueue(ctx context.Context, input taskqueue.EnqueueInput) (string, error)
	Statistics(ctx context.Context) (*taskqueue.Stats, error)
	List(ctx context.Context, filter taskqueue.ListFilter) ([]taskqueue.Task, error)
	Get(ctx context.Context, id string) (*taskqueue.Task, error)
	Requeue(ctx context.Context, id string) error
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
	RecoverStuck(ctx context.Context, olderThan time.Duration) (taskqueue.RecoverResult, error)
}

type enqueueOptions struct {
	DocumentID  string
	Reason      string
	Payload     string
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

var enqueueOpts enqueueOptions

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <task-type>",
	Short: "Add a task to the processing queue",
	Long: `Add a pending task to the queue. Document tasks take --document-id;
--payload accepts a raw JSON object for anything else.

Task types: ` + strings.Join(taskTypeNames(), ", "),
	Example: `  retention enqueue OCR_PROCESSING --document-id doc-42
  retention enqueue REDACTION --document-id doc-42 --priority 5
  retention enqueue LIFECYCLE_CHECK --delay 1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := buildEnqueueInput(args[0], enqueueOpts, time.Now())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runEnqueue(ctx, a.Queue, input, out)
		})
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the task queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task counts by status and type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runQueueStats(ctx, a.Queue, out)
		})
	},
}

var (
	listStatus string
	listType   string
	listLimit  int
	listOffset int
)

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := buildListFilter(listStatus, listType, listLimit, listOffset)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runQueueList(ctx, a.Queue, filter, out)
		})
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print one task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runQueueShow(ctx, a.Queue, args[0], out)
		})
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <task-id>...",
	Short: "Return failed tasks to pending with a fresh attempt budget",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			return runQueueRetry(ctx, a.Queue, args, out)
		})
	},
}

var cleanupDays int

var queueCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete completed and failed tasks older than --older-than-days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			days := cleanupDays
			if !cmd.Flags().Changed("older-than-days") {
				days = a.Config.Queue.CleanupAfterDays
			}
			return runQueueCleanup(ctx, a.Queue, days, out)
		})
	},
}

var stuckAfter time.Duration

var queueRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Requeue or fail tasks stuck in processing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
			after := stuckAfter
			if !cmd.Flags().Changed("stuck-after") {
				after = a.Config.Queue.StuckAfter
			}
			return runQueueRecover(ctx, a.Queue, after, out)
		})
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueOpts.DocumentID, "document-id", "", "Target document for document tasks")
	enqueueCmd.Flags().StringVar(&enqueueOpts.Reason, "reason", "", "Why the task was queued")
	enqueueCmd.Flags().StringVar(&enqueueOpts.Payload, "payload", "", "Raw JSON payload (overrides --document-id)")
	enqueueCmd.Flags().IntVar(&enqueueOpts.Priority, "priority", 0, "Higher runs first")
	enqueueCmd.Flags().DurationVar(&enqueueOpts.Delay, "delay", 0, "Schedule the task this far in the future")
	enqueueCmd.Flags().IntVar(&enqueueOpts.MaxAttempts, "max-attempts", 0, "Attempt budget (0 uses the configured default)")
	rootCmd.AddCommand(enqueueCmd)

	queueListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, processing, completed, failed)")
	queueListCmd.Flags().StringVar(&listType, "type", "", "Filter by task type")
	queueListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum tasks to show")
	queueListCmd.Flags().IntVar(&listOffset, "offset", 0, "Tasks to skip")

	queueCleanupCmd.Flags().IntVar(&cleanupDays, "older-than-days", 0, "Age threshold in days (default from config)")
	queueRecoverCmd.Flags().DurationVar(&stuckAfter, "stuck-after", 0, "Processing age treated as stuck (default from config)")

	queueCmd.AddCommand(queueStatsCmd, queueListCmd, queueShowCmd, queueRetryCmd, queueCleanupCmd, queueRecoverCmd)
	rootCmd.AddCommand(queueCmd)
}

func buildEnqueueInput(taskType string, opts enqueueOptions, now time.Time) (taskqueue.EnqueueInput, error) {
	t, err := taskqueue.ParseTaskType(taskType)
	if err != nil {
		return taskqueue.EnqueueInput{}, fmt.Errorf("%w\nValid task types: %s", err, strings.Join(taskTypeNames(), ", "))
	}
	if opts.Delay < 0 {
		return taskqueue.EnqueueInput{}, fmt.Errorf("delay must not be negative")
	}

	input := taskqueue.EnqueueInput{
		TaskType:    t,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
	}
	if opts.Delay > 0 {
		at := now.Add(opts.Delay)
		input.ScheduledFor = &at
	}

	switch {
	case opts.Payload != "":
		raw := json.RawMessage(opts.Payload)
		if !json.Valid(raw) {
			return taskqueue.EnqueueInput{}, fmt.Errorf("--payload is not valid JSON")
		}
		input.Payload = raw
	case opts.DocumentID != "":
		input.Payload = taskqueue.DocumentPayload{DocumentID: opts.DocumentID, Reason: opts.Reason}
	case t != taskqueue.TaskTypeLifecycleCheck:
		return taskqueue.EnqueueInput{}, fmt.Errorf("%s requires --document-id or --payload", t)
	}
	return input, nil
}

func buildListFilter(status, taskType string, limit, offset int) (taskqueue.ListFilter, error) {
	filter := taskqueue.ListFilter{Limit: limit, Offset: offset}
	if status != "" {
		s := taskqueue.TaskStatus(status)
		if !s.Valid() {
			return filter, fmt.Errorf("unknown status %q", status)
		}
		filter.Status = s
	}
	if taskType != "" {
		t, err := taskqueue.ParseTaskType(taskType)
		if err != nil {
			return filter, err
		}
		filter.TaskType = t
	}
	return filter, nil
}

func runEnqueue(ctx context.Context, q queueOps, input taskqueue.EnqueueInput, out io.Writer) error {
	id, err := q.Enqueue(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

func runQueueStats(ctx context.Context, q queueOps, out io.Writer) error {
	stats, err := q.Statistics(ctx)
	if err != nil {
		return err
	}
	displayStats(out, stats)
	return nil
}

func runQueueList(ctx context.Context, q queueOps, filter taskqueue.ListFilter, out io.Writer) error {
	tasks, err := q.List(ctx, filter)
	if err != nil {
		return err
	}
	displayTasks(out, tasks)
	return nil
}

func runQueueShow(ctx context.Context, q queueOps, id string, out io.Writer) error {
	task, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(out, task)
}

func runQueueRetry(ctx context.Context, q queueOps, ids []string, out io.Writer) error {
	failed := 0
	for _, id := range ids {
		if err := q.Requeue(ctx, id); err != nil {
			fmt.Fprintf(out, "%s\tFAILED\t%v\n", id, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s\tREQUEUED\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks could not be requeued", failed, len(ids))
	}
	return nil
}

func runQueueCleanup(ctx context.Context, q queueOps, days int, out io.Writer) error {
	deleted, err := q.Cleanup(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d tasks older than %d days\n", deleted, days)
	return nil
}

func runQueueRecover(ctx context.Context, q queueOps, after time.Duration, out io.Writer) error {
	res, err := q.RecoverStuck(ctx, after)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Requeued %d, failed %d stuck tasks\n", res.Requeued, res.Failed)
	return nil
}

func displayStats(out io.Writer, stats *taskqueue.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	fmt.Fprintln(w, "------\t-----")
	fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
	fmt.Fprintf(w, "processing\t%d\n", stats.Processing)
	fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
	fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	w.Flush()

	if len(stats.PendingByType) == 0 && len(stats.ProcessingByType) == 0 {
		return
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPENDING\tPROCESSING")
	fmt.Fprintln(w, "----\t-------\t----------")
	for _, t := range taskqueue.AllTaskTypes() {
		p, r := stats.PendingByType[t], stats.ProcessingByType[t]
		if p == 0 && r == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\n", t, p, r)
	}
	w.Flush()
}

func displayTasks(out io.Writer, tasks []taskqueue.Task) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPRIORITY\tATTEMPTS\tSCHEDULED\tLAST ERROR")
	fmt.Fprintln(w, "--\t----\t------\t--------\t--------\t---------\t----------")
	for _, t := range tasks {
		lastErr := "-"
		if t.LastError != nil {
			lastErr = truncate(*t.LastError, 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			t.ID, t.TaskType, t.Status, t.Priority, t.Attempts, t.MaxAttempts,
			t.ScheduledFor.Format(time.RFC3339), lastErr)
	}
	w.Flush()
}

func taskTypeNames() []string {
	types := taskqueue.AllTaskTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	sort.Strings(names)
	return names
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
