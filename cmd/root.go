// Package cmd defines and implements the CLI commands of the pricing-research executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/api"
	"github.com/JakeFAU/pricing-research/internal/app"
	"github.com/JakeFAU/pricing-research/internal/config"
	"github.com/JakeFAU/pricing-research/internal/logging"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the set of application services the commands use.
// Tests inject a fake through newApp.
type App interface {
	Logger() *zap.Logger
	Config() config.Config
	HandlerDeps() api.HandlerDeps
	Ready(ctx context.Context) error
	Close(ctx context.Context)
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "pricing-research",
		Short: "Collects seller offers for products listed on Brazilian marketplaces.",
		Long: `pricing-research scrapes the sellers offering a product on Beleza na Web,
Amazon and Mercado Livre, stores each research snapshot and serves it back
over HTTP until it expires.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml, json or toml)")
	for _, sub := range []*cobra.Command{newServeCmd(), newResearchCmd()} {
		sub.RunE = closingApp(sub.RunE)
		cmd.AddCommand(sub)
	}
	return cmd
}

// closingApp wraps run so the App is closed whether or not run fails.
// Cobra skips post-run hooks after an error, so the close lives here.
func closingApp(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer closeApp(cmd.Context())
		return run(cmd, args)
	}
}

func closeApp(ctx context.Context) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appInstance.Config().ShutdownTimeout())
	defer cancel()
	appInstance.Close(closeCtx)
	_ = appInstance.Logger().Sync()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pricing-research: %v\n", err)
		stop()
		os.Exit(1)
	}
}
