// Package app assembles the a2a runtime from a configuration file: logger,
// telemetry, modules, the dispatcher and its background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/GreenD93/mcp-project/internal/config"
	"github.com/GreenD93/mcp-project/internal/core"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/logging"
	"github.com/GreenD93/mcp-project/internal/telemetry"
)

// Params configures Build and Run.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
}

// Runtime is a provisioned application. Modules are loaded but not started.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	App        *core.App
	Dispatcher *dispatch.Dispatcher
	Metrics    *telemetry.Metrics

	shutdownTracing func(context.Context) error
}

// Build loads configuration, provisions every configured module and wires
// the dispatcher. The first roster load happens here; a failure is logged and
// the dispatcher reports not-ready until a later refresh succeeds.
func Build(ctx context.Context, params Params) (*Runtime, error) {
	cfgPath := params.ConfigPath
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
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := logging.NewRedactor()
	for _, m := range cfg.Modules {
		addSecrets(redactor, &m)
	}
	logger, err := logging.New(cfg.Log, redactor)
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	metrics := telemetry.NewMetrics()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("config.path", cfgPath)
	appCtx.RegisterService(serviceMetrics, metrics)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, errors.Join(err, shutdownTracing(ctx))
	}

	d, err := wireDispatcher(application, cfg, logger, metrics)
	if err != nil {
		application.Release()
		return nil, errors.Join(err, shutdownTracing(ctx))
	}
	appCtx.RegisterService(serviceDispatcher, d)

	if err := d.Refresh(); err != nil {
		logger.Warn("initial roster load failed", "error", err)
	}

	return &Runtime{
		Config:          cfg,
		ConfigPath:      cfgPath,
		Logger:          logger,
		App:             application,
		Dispatcher:      d,
		Metrics:         metrics,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases modules that were never started and flushes tracing.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.App.Release()
	return rt.shutdownTracing(ctx)
}

// Run builds the runtime, adds the refresh, prune and reload jobs, starts
// every module and blocks until ctx is done or a shutdown signal arrives.
func Run(ctx context.Context, params Params) error {
	rt, err := Build(ctx, params)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			rt.Logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if err := wireBackground(rt); err != nil {
		return fmt.Errorf("wiring background jobs: %w", err)
	}

	rt.Logger.Info("a2a starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", rt.ConfigPath,
	)
	return rt.App.Run(ctx)
}

// secretKeys are module configuration keys whose values are scrubbed from
// logs.
var secretKeys = map[string]bool{
	"api_key":      true,
	"bearer_token": true,
	"basic_pass":   true,
	"token":        true,
}

// addSecrets registers every secret value found in a module node.
func addSecrets(r *logging.Redactor, node *yaml.Node) {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if secretKeys[k.Value] && v.Kind == yaml.ScalarNode {
				r.AddLiteral(v.Value)
				continue
			}
			addSecrets(r, v)
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range node.Content {
			addSecrets(r, c)
		}
	}
}
