// Package cmd defines the keiba-crawler CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/app"
	"github.com/JakeFAU/keiba-crawler/internal/config"
	"github.com/JakeFAU/keiba-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. Tests replace it to inject in-memory services.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd builds the command tree. The App built by the pre-run hook is
// recorded in holder so it can be closed even when a subcommand fails.
func newRootCmd(holder **app.App) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "keiba-crawler",
		Short: "Crawls netkeiba race results into a page cache and a database.",
		Long: `keiba-crawler walks the netkeiba race calendar, caches every calendar,
race list and race result page it visits, extracts race headers and finishing
orders, and stores them. Horse and pedigree pages are cached in a second pass.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			*holder = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

// run executes the CLI with args and closes the App afterwards.
func run(ctx context.Context, args []string, out io.Writer) (err error) {
	var a *app.App
	root := newRootCmd(&a)
	root.SetArgs(args)
	root.SetOut(out)
	defer func() {
		if a != nil {
			err = errors.Join(err, a.Close())
		}
	}()
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}
