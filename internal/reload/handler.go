package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Refresher rebuilds the roster. dispatch.Dispatcher implements it.
type Refresher interface {
	Refresh() error
}

// Handler turns watcher events and SIGHUP into roster refreshes.
type Handler struct {
	target Refresher
	logger *slog.Logger
}

// NewHandler creates a reload handler.
func NewHandler(target Refresher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{target: target, logger: logger.With("component", "reload")}
}

// HandleReload refreshes the roster once. A failed refresh leaves the
// previous roster serving.
func (h *Handler) HandleReload(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}
	if err := h.target.Refresh(); err != nil {
		return fmt.Errorf("refreshing roster: %w", err)
	}
	h.logger.Info("roster reloaded", "reason", reason)
	return nil
}

// Run refreshes on every event from w (which may be nil) and on SIGHUP until
// ctx is done.
func (h *Handler) Run(ctx context.Context, w *Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var events <-chan Event
	if w != nil {
		if !w.exists() {
			h.logger.Warn("no watched catalog path exists yet", "paths", w.cfg.Paths)
		}
		events = w.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := h.HandleReload(ctx, "sighup"); err != nil {
				h.logger.Error("reload failed", "error", err)
			}
		case <-events:
			if err := h.HandleReload(ctx, "catalog changed"); err != nil {
				h.logger.Error("reload failed", "error", err)
			}
		}
	}
}
