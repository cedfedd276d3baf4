package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openarchive/retention-service/config"
	"github.com/openarchive/retention-service/internal/app"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "retention",
	Short: "Retention Service CLI - document queue and lifecycle operations",
	Long: `A CLI for operating the document archive: apply database migrations,
enqueue and inspect processing tasks, run the retention lifecycle and
start a standalone queue worker.`,
	SilenceUsage:      true,
	PersistentPreRunE: persistentPreRun,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

// persistentPreRun loads configuration and the logger before each command
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI output goes to stdout, logs to stderr.
	logger = app.NewLogger(cfg.Logging, "retention-cli", os.Stderr)
	return nil
}

// openApp builds the full component graph. Replaced in tests.
var openApp = func(ctx context.Context) (*app.App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return app.New(ctx, cfg, logger)
}

// withApp runs fn against a freshly built App and closes it afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, cmd.OutOrStdout())
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
