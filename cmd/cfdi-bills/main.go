package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cfdi-bills/internal/app"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version   = "dev"
	buildDate = "unknown"
)

type rootFlags struct {
	envFile    string
	configFile string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "cfdi-bills",
		Short: "Turn CFDI invoices into QuickBooks bills",
		Long: `cfdi-bills reads CFDI 4.0 XML invoices, matches each line to a QuickBooks
item (falling back to an expense account) and previews or submits the bill.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "load environment from this .env file")
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config overlay (defaults to $CONFIG_FILE)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(
		newReconcileCmd(flags),
		newBatchCmd(flags),
		newVendorsCmd(flags),
		newAccountsCmd(flags),
		newRunsCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads configuration and wires the application for one command.
func (f *rootFlags) load(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := common.LoadConfig(f.envFile, f.configFile)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// logs go to stderr so command output stays pipeable
	logger := common.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return app.Build(ctx, cfg, logger, opts)
}
