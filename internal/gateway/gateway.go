// Package gateway serves the dispatcher over HTTP: one-shot runs, streamed
// answers over websocket, operator tool calls and roster administration.
// It binds to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GreenD93/mcp-project/internal/core"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/telemetry"
)

// Service names the gateway resolves at Start.
const (
	ServiceDispatcher = "dispatch.dispatcher"
	ServiceMetrics    = "telemetry.metrics"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Dispatcher is the request surface the gateway exposes.
// *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Run(ctx context.Context, text string) (*dispatch.Response, error)
	Agents() []dispatch.AgentInfo
	InvokeTool(ctx context.Context, agent, server, tool string, args map[string]any, streamed bool) (dispatch.ToolOutput, error)
	Refresh() error
	Roster() *dispatch.Roster
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config  Config
	appCtx  *core.AppContext
	logger  *slog.Logger
	server  *http.Server
	limiter *rateLimiter
	cancel  context.CancelFunc

	startedAt time.Time

	// Resolved at Start() via the service registry.
	dispatcher Dispatcher
	metrics    *telemetry.Metrics
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	if g.config.RateLimit.RequestsPerMin > 0 {
		g.limiter = newRateLimiter(g.config.RateLimit)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return g.config.RateLimit.validate()
}

// Start implements core.Starter. The dispatcher is required; metrics are
// optional.
func (g *Gateway) Start() error {
	if err := g.resolveServices(); err != nil {
		return err
	}
	g.startedAt = time.Now()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	if g.limiter != nil {
		go g.limiter.run(ctx)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

func (g *Gateway) resolveServices() error {
	if g.dispatcher == nil {
		svc, ok := g.appCtx.GetService(ServiceDispatcher)
		if !ok {
			return fmt.Errorf("gateway: service %q not registered", ServiceDispatcher)
		}
		d, ok := svc.(Dispatcher)
		if !ok {
			return fmt.Errorf("gateway: service %q has type %T", ServiceDispatcher, svc)
		}
		g.dispatcher = d
	}
	if g.metrics == nil {
		if svc, ok := g.appCtx.GetService(ServiceMetrics); ok {
			g.metrics, _ = svc.(*telemetry.Metrics)
		}
	}
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
