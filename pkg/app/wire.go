package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/config"
	"github.com/GreenD93/mcp-project/internal/core"
	"github.com/GreenD93/mcp-project/internal/cron"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/provider"
	"github.com/GreenD93/mcp-project/internal/reload"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/tool"
	"github.com/GreenD93/mcp-project/internal/trace"
)

// Service names shared with the gateway.
const (
	serviceDispatcher = "dispatch.dispatcher"
	serviceMetrics    = "telemetry.metrics"
)

// archive is a trace sink with a retention window, such as trace.sqlite.
type archive interface {
	trace.Sink
	cron.TracePruner
	Retention() time.Duration
	PruneSchedule() string
}

// dispatcherModule puts the dispatcher in the App lifecycle so the tool
// invoker's sessions are closed on shutdown.
type dispatcherModule struct {
	invoker *tool.Invoker
}

func (m *dispatcherModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "dispatch"}
}

func (m *dispatcherModule) Start() error { return nil }

func (m *dispatcherModule) Stop(context.Context) error {
	return m.invoker.Close()
}

// schedulerModule wraps the cron scheduler, which already has Start and Stop.
type schedulerModule struct {
	*cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

// reloadModule refreshes the roster on SIGHUP and, when watching is on, on
// catalog file changes.
type reloadModule struct {
	handler *reload.Handler
	watcher *reload.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func (m *reloadModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "reload"}
}

func (m *reloadModule) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	if m.watcher != nil {
		m.watcher.Start(ctx)
	}
	go func() {
		defer close(m.done)
		m.handler.Run(ctx, m.watcher)
	}()
	return nil
}

// Stop is a no-op when Start never ran, as on a failed startup.
func (m *reloadModule) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.done == nil {
		return nil
	}
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wireDispatcher discovers the provider and trace archive among the loaded
// modules and builds the dispatcher over the configured catalog. Must be
// called after LoadModules and before Start.
func wireDispatcher(app *core.App, cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) (*dispatch.Dispatcher, error) {
	var (
		defaultProvider provider.Provider
		sink            trace.Sink
	)
	for _, id := range config.Resolve(cfg) {
		mod, ok := app.Module(core.ModuleID(id))
		if !ok {
			continue
		}
		if p, ok := mod.(provider.Provider); ok && defaultProvider == nil {
			defaultProvider = p
			logger.Info("wire: discovered provider", "module", id)
		}
		if s, ok := mod.(trace.Sink); ok && sink == nil {
			sink = s
			logger.Info("wire: discovered trace sink", "module", id)
		}
	}
	if defaultProvider == nil {
		var ids []string
		for _, info := range core.GetModulesByNamespace("provider") {
			ids = append(ids, string(info.ID))
		}
		return nil, fmt.Errorf("wire: at least one provider module is required (compiled: %s)", strings.Join(ids, ", "))
	}

	invCfg := cfg.Invoker
	invCfg.Logger = logger
	invoker := tool.NewInvoker(invCfg)

	d := dispatch.New(dispatch.Config{
		Agents: catalog.DirSource{Root: cfg.Catalog.AgentsDir},
		Tools: tool.DirSource{
			Root:        cfg.Catalog.ToolsDir,
			ServersFile: cfg.Catalog.ServersFile,
		},
		FallbackAgent: cfg.Catalog.FallbackAgent,
		Oracle:        oracle.NewClient(defaultProvider, logger, metrics.ObserveOracle),
		Invoker:       invoker,
		Validator:     tool.NewValidator(cfg.Validation.Mode, logger),
		Sink:          sink,
		Metrics:       metrics,
		Logger:        logger,
	})

	app.AppendModule("dispatch", &dispatcherModule{invoker: invoker})
	return d, nil
}

// wireBackground appends the scheduler (catalog refresh, trace pruning) and
// the reload handler to the App lifecycle.
func wireBackground(rt *Runtime) error {
	cfg := rt.Config
	logger := rt.Logger

	sched := cron.NewScheduler(logger)
	jobs := 0
	if cfg.Catalog.Refresh != "" {
		if err := sched.RegisterJob(&cron.RefreshJob{
			Target:       rt.Dispatcher,
			Logger:       logger,
			ScheduleExpr: cfg.Catalog.Refresh,
		}); err != nil {
			return err
		}
		jobs++
	}
	for _, id := range config.Resolve(cfg) {
		mod, ok := rt.App.Module(core.ModuleID(id))
		if !ok {
			continue
		}
		a, ok := mod.(archive)
		if !ok || a.Retention() <= 0 {
			continue
		}
		if err := sched.RegisterJob(&cron.TracePruneJob{
			Store:        a,
			Retention:    a.Retention(),
			Logger:       logger,
			ScheduleExpr: a.PruneSchedule(),
		}); err != nil {
			return fmt.Errorf("trace prune job for %s: %w", id, err)
		}
		jobs++
	}
	if jobs > 0 {
		rt.App.AppendModule("cron", &schedulerModule{Scheduler: sched})
	}

	var watcher *reload.Watcher
	if cfg.Catalog.Watch {
		watcher = reload.NewWatcher(reload.WatcherConfig{
			Paths:        cfg.Catalog.WatchPaths(),
			PollInterval: cfg.Catalog.PollInterval,
		})
	}
	rt.App.AppendModule("reload", &reloadModule{
		handler: reload.NewHandler(rt.Dispatcher, logger),
		watcher: watcher,
	})
	return nil
}
