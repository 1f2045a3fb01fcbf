// Package cli provides the tableio command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tableio/internal/app"
	"github.com/JonMunkholm/tableio/internal/config"
	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/logging"
	"github.com/JonMunkholm/tableio/internal/store"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// serviceKey is used to store the service in the command context.
type serviceKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tableio",
		Short: "tableio - read and write tabular files",
		Long: `tableio detects tabular file formats, shows the read and write plans
a node would evaluate and converts files between delimited text, Excel
workbooks, Parquet and Feather.

Configuration is read from the environment and an optional .env file,
the same way the server reads it.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))

			svc, err := newService(cfg)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), serviceKey{}, svc))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.AddCommand(newVersionCommand(Version))
	rootCmd.AddCommand(newDetectCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newConvertCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		return err
	}
	return nil
}

// newService builds a service without uploads or mounts. Node state lives
// in memory for the life of the command.
func newService(cfg *config.Config) (*core.Service, error) {
	resolver, err := app.NewResolver(cfg)
	if err != nil {
		return nil, err
	}
	return core.NewService(core.ServiceConfig{
		Store:     store.NewMemory(),
		Resolver:  resolver,
		Evaluator: app.NewEvaluator(cfg),
		Limiter:   core.NewEvalLimiter(cfg.Eval.MaxConcurrent, cfg.Eval.MaxWaitTime),
		Timeout:   cfg.Eval.Timeout,
	})
}

func serviceFrom(cmd *cobra.Command) (*core.Service, error) {
	svc, ok := cmd.Context().Value(serviceKey{}).(*core.Service)
	if !ok {
		return nil, fmt.Errorf("service not initialized")
	}
	return svc, nil
}
