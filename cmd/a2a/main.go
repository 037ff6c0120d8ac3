// Package main is the entry point for the a2a CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/GreenD93/mcp-project/internal/config"
	"github.com/GreenD93/mcp-project/internal/core"
	"github.com/GreenD93/mcp-project/internal/logging"
	"github.com/GreenD93/mcp-project/pkg/app"

	_ "github.com/GreenD93/mcp-project/internal/gateway"
	_ "github.com/GreenD93/mcp-project/modules/provider/openai"
	_ "github.com/GreenD93/mcp-project/modules/tracestore/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that loads a configuration.
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func (g *globalFlags) params() app.Params {
	return app.Params{
		ConfigPath: g.configPath,
		DataDir:    g.dataDir,
		LogLevel:   g.logLevel,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func rootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "a2a",
		Short:         "Route requests to catalogued agents and their tool servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Persistent data directory")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		startCmd(&flags),
		configCmd(),
		askCmd(&flags),
		agentsCmd(&flags),
		toolCmd(&flags),
		tracesCmd(&flags),
		initCmd(),
		serviceCmd(&flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "a2a %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a2a with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), flags.params())
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			// Modules are provisioned against a scratch data directory.
			scratch, err := os.MkdirTemp("", "a2a-check-")
			if err != nil {
				return err
			}
			defer func() { _ = os.RemoveAll(scratch) }()

			appCtx := core.NewAppContext(logging.Discard(), scratch)
			appCtx = appCtx.WithModuleConfigs(cfg.Modules)

			a := core.NewApp(appCtx)
			ids := config.Resolve(cfg)
			if err := a.LoadModules(ids); err != nil {
				return err
			}
			defer a.Release()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

// withRuntime builds the runtime for a one-shot command and releases it
// afterwards.
func withRuntime(ctx context.Context, flags *globalFlags, fn func(*app.Runtime) error) error {
	params := flags.params()
	if params.LogLevel == "" {
		params.LogLevel = slog.LevelWarn.String()
	}
	rt, err := app.Build(ctx, params)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	return fn(rt)
}
