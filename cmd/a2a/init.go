package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// initAnswers are the choices behind a generated a2a.yaml.
type initAnswers struct {
	AgentsDir     string
	ToolsDir      string
	FallbackAgent string
	Model         string
	APIKeyEnv     string
	Gateway       bool
	Bind          string
	Archive       bool
	Retention     string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		AgentsDir:     "agents",
		ToolsDir:      "tools",
		FallbackAgent: "basic_agent",
		Model:         "gpt-4o-mini",
		APIKeyEnv:     "OPENAI_API_KEY",
		Gateway:       true,
		Bind:          "127.0.0.1:8080",
		Archive:       true,
		Retention:     "168h",
	}
}

var configTemplate = template.Must(template.New("a2a.yaml").Parse(`version: "1"

catalog:
  agents_dir: {{ .AgentsDir }}
  tools_dir: {{ .ToolsDir }}
  fallback_agent: {{ .FallbackAgent }}
  refresh: "*/5 * * * *"
  watch: true

validation:
  mode: strict

log:
  level: info
  format: text

telemetry:
  tracing: none

modules:
  provider.openai:
    api_key: ${ {{- .APIKeyEnv -}} }
    model: {{ .Model }}
{{- if .Gateway }}
  gateway.http:
    bind: "{{ .Bind }}"
    auth:
      bearer_token: ${A2A_GATEWAY_TOKEN:-}
    rate_limit:
      requests_per_min: 60
{{- end }}
{{- if .Archive }}
  trace.sqlite:
    retention: {{ .Retention }}
{{- end }}
`))

func renderConfig(a initAnswers) (string, error) {
	var b strings.Builder
	if err := configTemplate.Execute(&b, a); err != nil {
		return "", err
	}
	return b.String(), nil
}

func initCmd() *cobra.Command {
	var (
		output   string
		force    bool
		defaults bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			answers := defaultAnswers()
			if !defaults {
				if err := askInit(&answers); err != nil {
					return err
				}
			}

			text, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, []byte(text), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nCheck it with: a2a config check %s\n", output, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "a2a.yaml", "Where to write the configuration")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&defaults, "yes", "y", false, "Accept the defaults without prompting")
	return cmd
}

func askInit(a *initAnswers) error {
	notEmpty := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("required")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Agents directory").
				Description("One sub-directory per agent, each holding card.json").
				Value(&a.AgentsDir).Validate(notEmpty),
			huh.NewInput().Title("Tools directory").
				Description("One sub-directory per tool server, each holding manifest.json").
				Value(&a.ToolsDir),
			huh.NewInput().Title("Fallback agent").Value(&a.FallbackAgent),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Model").
				Options(huh.NewOptions("gpt-4o-mini", "gpt-4o", "gpt-4.1-mini")...).
				Value(&a.Model),
			huh.NewInput().Title("Environment variable holding the API key").
				Value(&a.APIKeyEnv).Validate(notEmpty),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Serve the HTTP gateway?").Value(&a.Gateway),
			huh.NewInput().Title("Gateway bind address").Value(&a.Bind),
			huh.NewConfirm().Title("Archive traces in SQLite?").Value(&a.Archive),
			huh.NewInput().Title("Trace retention").
				Description("Go duration, e.g. 168h").
				Value(&a.Retention),
		),
	)
	return form.Run()
}
