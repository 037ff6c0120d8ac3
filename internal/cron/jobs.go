package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Refresher rebuilds the agent roster from disk.
type Refresher interface {
	Refresh() error
}

// RefreshJob periodically rebuilds the roster so catalog edits are picked up
// without a restart.
type RefreshJob struct {
	Target       Refresher
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

var _ Job = (*RefreshJob)(nil)

// Name implements Job.
func (j *RefreshJob) Name() string { return "catalog_refresh" }

// Schedule implements Job.
func (j *RefreshJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run refreshes the roster. A failure keeps the previous roster serving.
func (j *RefreshJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: refresh cancelled: %w", err)
	}
	if err := j.Target.Refresh(); err != nil {
		return fmt.Errorf("cron: refreshing roster: %w", err)
	}
	return nil
}

// TracePruner deletes archived traces started before a cutoff.
type TracePruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// TracePruneJob enforces the trace archive's retention window.
type TracePruneJob struct {
	Store        TracePruner
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"

	now func() time.Time
}

var _ Job = (*TracePruneJob)(nil)

// Name implements Job.
func (j *TracePruneJob) Name() string { return "trace_prune" }

// Schedule implements Job.
func (j *TracePruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run deletes traces older than Retention.
func (j *TracePruneJob) Run(ctx context.Context) error {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	n, err := j.Store.Prune(ctx, now().Add(-j.Retention))
	if err != nil {
		return fmt.Errorf("cron: pruning traces: %w", err)
	}
	if n > 0 {
		j.Logger.Info("cron: pruned archived traces", "count", n, "retention", j.Retention)
	}
	return nil
}
