package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/pkg/app"
)

func askCmd(flags *globalFlags) *cobra.Command {
	var showTrace bool
	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Run one request and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				resp, err := rt.Dispatcher.Run(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				return writeAnswer(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp, showTrace)
			})
		},
	}
	cmd.Flags().BoolVar(&showTrace, "trace", false, "Print the execution trace as JSON after the answer")
	return cmd
}

// writeAnswer streams the answer to out, then the plan summary (and the
// trace when asked) to meta.
func writeAnswer(out, meta io.Writer, resp *dispatch.Response, showTrace bool) error {
	var streamErr error
	for part, err := range resp.Answer {
		if err != nil {
			streamErr = err
			break
		}
		if _, err := io.WriteString(out, part); err != nil {
			return err
		}
	}
	fmt.Fprintln(out)

	if resp.Action != nil {
		data, err := json.MarshalIndent(resp.Action, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(meta, "action: %s\n", data)
	}
	fmt.Fprintf(meta, "agent=%s mode=%s status=%s trace=%s\n",
		resp.Agent, resp.Plan.Mode, resp.Status, resp.Trace.ID)

	if showTrace {
		enc := json.NewEncoder(meta)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp.Trace); err != nil {
			return err
		}
	}
	return streamErr
}

func agentsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List catalogued agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				agents := rt.Dispatcher.Agents()
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(agents)
				}
				return writeAgents(cmd.OutOrStdout(), agents)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func writeAgents(w io.Writer, agents []dispatch.AgentInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tVERSION\tTOOLS\tDESCRIPTION")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", a.Name, a.Kind, a.Version, a.ToolCount, a.Description)
	}
	return tw.Flush()
}

func toolCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Operate on tool servers",
	}

	var (
		rawArgs  string
		streamed bool
	)
	call := &cobra.Command{
		Use:   "call <agent> <server> <tool>",
		Short: "Invoke a tool under an agent's policy",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]any{}
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				out, err := rt.Dispatcher.InvokeTool(cmd.Context(), args[0], args[1], args[2], toolArgs, streamed)
				if err != nil {
					return describeToolError(err)
				}
				w := cmd.OutOrStdout()
				if !streamed {
					_, err := fmt.Fprintf(w, "%s\n", out.Data)
					return err
				}
				for part, err := range out.Stream {
					if err != nil {
						return err
					}
					if _, err := io.WriteString(w, part); err != nil {
						return err
					}
				}
				fmt.Fprintln(w)
				return nil
			})
		},
	}
	call.Flags().StringVar(&rawArgs, "args", "", "Tool arguments as a JSON object")
	call.Flags().BoolVar(&streamed, "stream", false, "Stream the response as it arrives")
	cmd.AddCommand(call)
	return cmd
}

// describeToolError lists validation errors one per line.
func describeToolError(err error) error {
	var ve *dispatch.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("invalid arguments:\n  %s", strings.Join(ve.Result.Errors, "\n  "))
}
