// Package sqlite implements the trace.sqlite module: a SQLite archive of
// finished execution traces for operators. It uses modernc.org/sqlite (pure
// Go, no CGO) in WAL mode. Routing never reads from the archive.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GreenD93/mcp-project/internal/core"
	"github.com/GreenD93/mcp-project/internal/trace"
)

// ServiceName is the service the archive is published under.
const ServiceName = "trace.sink"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ trace.Sink        = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the archive database for the application lifetime.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "trace.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := open(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.store = &Store{db: db}
	ctx.RegisterService(ServiceName, m.store)

	m.logger.Info("sqlite trace archive provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"retention", m.config.Retention,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite trace archive stopping")
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Record implements trace.Sink.
func (m *Module) Record(ctx context.Context, tr *trace.Trace) error {
	return m.store.Record(ctx, tr)
}

// Prune deletes traces started before the cutoff.
func (m *Module) Prune(ctx context.Context, before time.Time) (int, error) {
	return m.store.Prune(ctx, before)
}

// Store returns the archive.
func (m *Module) Store() *Store { return m.store }

// Retention returns the configured retention window. Zero disables pruning.
func (m *Module) Retention() time.Duration { return m.config.Retention }

// PruneSchedule returns the prune job's cron expression, or "" for the
// job's default.
func (m *Module) PruneSchedule() string { return m.config.PruneSchedule }
