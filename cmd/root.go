package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sawdisk/internal/app"
	"github.com/JakeFAU/sawdisk/internal/config"
	configfile "github.com/JakeFAU/sawdisk/pkg/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can build the
// application against throwaway registries and loggers.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sawdisk",
		Short: "Scan mounted volumes for cryptocurrency wallets and private keys.",
		Long: `sawdisk walks a mounted filesystem read-only and classifies files that look
like cryptocurrency wallets, keystores, seed phrases or private keys. Every
finding carries a confidence score; sawdisk never decrypts or validates key
material.`,
		SilenceUsage: true,

		// Builds the application once the subcommand's flags are parsed.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configfile.Locate(cfgFile)
			if err != nil {
				return fmt.Errorf("locate config: %w", err)
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				if err := appInstance.Close(context.WithoutCancel(cmd.Context())); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: sawdisk.yaml in ., $HOME/.sawdisk or /etc/sawdisk)")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHistoryCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
