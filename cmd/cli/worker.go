package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openarchive/retention-service/internal/app"
)

var (
	workerNoSweep     bool
	workerNoLifecycle bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a queue worker without the HTTP API",
	Long: `Run the task dispatcher until interrupted. The queue sweeper and, when
lifecycle.enabled is set, the lifecycle scheduler run alongside it.
Several workers may run against the same database.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		return withApp(cmd, func(ctx context.Context, a *app.App, _ io.Writer) error {
			return runWorker(ctx, a)
		})
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerNoSweep, "no-sweep", false, "Do not run the queue sweeper")
	workerCmd.Flags().BoolVar(&workerNoLifecycle, "no-lifecycle", false, "Do not run scheduled lifecycle passes")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(ctx context.Context, a *app.App) error {
	var wake <-chan struct{}
	listener, err := a.Listen()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Task notifications unavailable, relying on polling")
	} else {
		defer listener.Close()
		wake = listener.Wake()
	}

	worker := a.NewWorker(wake)
	g, gctx := errgroup.WithContext(ctx)

	if listener != nil {
		g.Go(func() error {
			listener.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		worker.Start(gctx)
		<-gctx.Done()
		worker.Stop()
		return nil
	})

	if !workerNoSweep {
		sweeper := a.NewSweeper()
		g.Go(func() error {
			sweeper.Start(gctx)
			return nil
		})
	}

	if a.Config.Lifecycle.Enabled && !workerNoLifecycle {
		g.Go(func() error {
			a.Scheduler.Start(gctx)
			return nil
		})
	}

	err = g.Wait()
	a.Logger.Info().Msg("Worker exited")
	return err
}
