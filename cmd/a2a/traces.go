package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GreenD93/mcp-project/internal/config"
	"github.com/GreenD93/mcp-project/internal/trace"
	"github.com/GreenD93/mcp-project/modules/tracestore/sqlite"
)

const archiveModule = "trace.sqlite"

func tracesCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Inspect archived execution traces",
	}

	var (
		agent  string
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent traces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openArchive(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := store.List(cmd.Context(), sqlite.ListFilter{
				Agent:  agent,
				Status: trace.Status(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tAGENT\tMODE\tSTATUS\tINPUT")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Agent, r.PlanMode, r.Status, truncate(r.Input, 40))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&agent, "agent", "", "Only traces handled by this agent")
	list.Flags().StringVar(&status, "status", "", "Only traces ending with this status (e.g. failed:validation)")
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of traces")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one trace as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tr, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tr)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// openArchive opens the trace archive named by the configuration without
// provisioning the other modules.
func openArchive(cmd *cobra.Command, flags *globalFlags) (*sqlite.Store, error) {
	cfgPath := flags.configPath
	if cfgPath == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	node, ok := cfg.Modules[archiveModule]
	if !ok {
		return nil, fmt.Errorf("module %s is not configured in %s", archiveModule, cfgPath)
	}
	var mc struct {
		Path string `yaml:"path"`
	}
	if err := node.Decode(&mc); err != nil {
		return nil, fmt.Errorf("decoding %s config: %w", archiveModule, err)
	}
	if mc.Path == "" {
		dataDir := flags.dataDir
		if dataDir == "" {
			dataDir = config.DefaultDataDir()
		}
		mc.Path = filepath.Join(dataDir, "traces.db")
	}
	return sqlite.OpenStore(cmd.Context(), mc.Path)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
