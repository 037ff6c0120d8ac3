package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/GreenD93/mcp-project/internal/core"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/tool"
)

// Validate checks the structural validity of a Config: the version field,
// the catalog section, the enumerated settings and that every referenced
// module ID exists in the registry. All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateCatalog(cfg.Catalog)...)

	switch cfg.Validation.Mode {
	case "", tool.ValidationStrict, tool.ValidationFallback:
	default:
		errs = append(errs, fmt.Errorf("config: validation.mode %q (want strict or fallback)", cfg.Validation.Mode))
	}

	switch cfg.Telemetry.Tracing {
	case "", telemetry.TracingNone, telemetry.TracingStdout:
	case telemetry.TracingOTLP:
		if cfg.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("config: telemetry.endpoint is required for otlp tracing"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: telemetry.tracing %q (want none, stdout or otlp)", cfg.Telemetry.Tracing))
	}

	if err := cfg.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: log: %w", err))
	}

	if cfg.Invoker.Timeout < 0 {
		errs = append(errs, errors.New("config: invoker.timeout must not be negative"))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}
	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	return errors.Join(errs...)
}

func validateCatalog(c CatalogConfig) []error {
	var errs []error
	if c.AgentsDir == "" {
		errs = append(errs, errors.New("config: catalog.agents_dir is required"))
	}
	if c.ToolsDir == "" && c.ServersFile != "" {
		errs = append(errs, errors.New("config: catalog.servers_file is set without catalog.tools_dir"))
	}
	if c.Refresh != "" {
		if _, err := cron.ParseStandard(c.Refresh); err != nil {
			errs = append(errs, fmt.Errorf("config: catalog.refresh: %w", err))
		}
	}
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("config: catalog.poll_interval must not be negative"))
	}
	return errs
}
