package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/GreenD93/mcp-project/internal/agent"
	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/router"
	"github.com/GreenD93/mcp-project/internal/stream"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/tool"
	"github.com/GreenD93/mcp-project/internal/trace"
)

// Config holds the dispatcher's collaborators.
type Config struct {
	Agents catalog.Source
	Tools  tool.Source
	// FallbackAgent names the catalogued agent used when routing selects
	// none. Defaults to DefaultFallbackAgent; if absent from the catalog a
	// tool-less chat agent is used.
	FallbackAgent string

	Oracle    agent.Oracle
	Invoker   *tool.Invoker
	Validator *tool.Validator
	Kinds     *agent.Registry
	Sink      trace.Sink
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// Response is the outcome of one request.
type Response struct {
	Agent      string
	Selection  router.Selection
	Plan       trace.Plan
	Status     trace.Status
	Answer     stream.Text
	Action     *agent.Action
	Validation *tool.ValidationResult
	Trace      *trace.Trace
}

// Dispatcher routes requests against an atomically swapped roster. It is
// safe for concurrent use; a refresh never disturbs in-flight requests.
type Dispatcher struct {
	cfg    Config
	router *router.Router
	logger *slog.Logger

	roster    atomic.Pointer[Roster]
	refreshMu sync.Mutex
}

// New creates a Dispatcher. Call Refresh before serving requests.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FallbackAgent == "" {
		cfg.FallbackAgent = DefaultFallbackAgent
	}
	if cfg.Kinds == nil {
		cfg.Kinds = agent.NewRegistry()
	}
	if cfg.Validator == nil {
		cfg.Validator = tool.NewValidator(tool.ValidationStrict, cfg.Logger)
	}
	if cfg.Invoker == nil {
		cfg.Invoker = tool.NewInvoker(tool.InvokerConfig{Logger: cfg.Logger})
	}
	if cfg.Sink == nil {
		cfg.Sink = trace.NopSink{}
	}
	if cfg.Tools == nil {
		cfg.Tools = tool.StaticSource{}
	}
	logger := cfg.Logger.With("component", "dispatch")
	return &Dispatcher{
		cfg:    cfg,
		router: router.New(cfg.Oracle, cfg.Logger),
		logger: logger,
	}
}

// Roster returns the current snapshot, or nil before the first refresh.
func (d *Dispatcher) Roster() *Roster { return d.roster.Load() }

// Refresh rebuilds the roster from its sources and swaps it in. Malformed
// catalog entries and manifests are skipped and logged; only an unreadable
// catalog source fails the refresh, leaving the previous roster in place.
func (d *Dispatcher) Refresh() error {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	r, err := d.build()
	d.cfg.Metrics.ObserveRefresh(rosterLen(r), err)
	if err != nil {
		d.logger.Error("dispatch: refresh failed, keeping previous roster", "error", err)
		return err
	}
	for _, p := range r.Problems {
		d.logger.Warn("dispatch: skipped entry", "error", p)
	}
	d.roster.Store(r)
	d.logger.Info("dispatch: roster loaded",
		"agents", r.Catalog.Len(),
		"fallback", r.fallback.Name(),
		"skipped", len(r.Problems),
	)
	return nil
}

func (d *Dispatcher) build() (*Roster, error) {
	if d.cfg.Agents == nil {
		return nil, errors.New("dispatch: no catalog source configured")
	}
	if d.cfg.Oracle == nil {
		return nil, agent.ErrNoOracle
	}
	cat, catErrs := catalog.Discover(d.cfg.Agents)
	if cat == nil {
		return nil, fmt.Errorf("dispatch: discovering agents: %w", errors.Join(catErrs...))
	}
	manifests, servers, toolErrs := d.cfg.Tools.Load()

	deps := agent.Deps{
		Oracle:    d.cfg.Oracle,
		Invoker:   d.cfg.Invoker,
		Validator: d.cfg.Validator,
		Manifests: manifests,
		Servers:   servers,
		Metrics:   d.cfg.Metrics,
		Logger:    d.cfg.Logger,
	}
	r, err := buildRoster(cat, d.cfg.Kinds, deps, d.cfg.FallbackAgent)
	if err != nil {
		return nil, err
	}
	r.Problems = append(append(catErrs, toolErrs...), r.Problems...)
	return r, nil
}

func rosterLen(r *Roster) int {
	if r == nil {
		return 0
	}
	return r.Catalog.Len()
}

// Agents lists the agents of the current roster.
func (d *Dispatcher) Agents() []AgentInfo {
	r := d.roster.Load()
	if r == nil {
		return []AgentInfo{}
	}
	return r.Agents()
}

// Run handles one user turn: route, execute on the chosen agent (or the
// fallback), then record the finished trace. The trace is complete when Run
// returns; the answer is generated as the caller ranges over it.
func (d *Dispatcher) Run(ctx context.Context, text string) (*Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	r := d.roster.Load()
	if r == nil {
		return nil, ErrNotReady
	}

	ctx, span := telemetry.StartSpan(ctx, "dispatch.run")
	defer span.End()

	tr := trace.New(text)
	sel := d.router.Route(ctx, r.Catalog, text, tr)

	var a agent.Agent
	if sel.Agent != nil {
		a, _ = r.Agent(sel.Agent.Name)
	}
	if a == nil {
		a = r.fallback
		tr.Add(trace.EventFallbackSelected, map[string]any{
			"agent":  a.Name(),
			"reason": fallbackReason(sel),
		})
		d.logger.Info("dispatch: using fallback agent", "agent", a.Name(), "trace_id", tr.ID)
	}
	span.SetAttributes(attribute.String("agent", a.Name()), attribute.String("trace_id", tr.ID))

	res := a.Execute(ctx, agent.Request{Text: text, Trace: tr})
	d.cfg.Metrics.ObserveRun(a.Name(), string(res.Status))
	if err := d.cfg.Sink.Record(ctx, tr); err != nil {
		d.logger.Warn("dispatch: recording trace failed", "trace_id", tr.ID, "error", err)
	}
	telemetry.SetOK(span)

	return &Response{
		Agent:      a.Name(),
		Selection:  sel,
		Plan:       res.Plan,
		Status:     res.Status,
		Answer:     res.Answer,
		Action:     res.Action,
		Validation: res.Validation,
		Trace:      tr,
	}, nil
}

func fallbackReason(sel router.Selection) string {
	switch {
	case sel.Decision.Error != "":
		return sel.Decision.Error
	case sel.Decision.Route == oracle.RouteAgent:
		return "unknown agent " + sel.Decision.AgentName
	case sel.Agent != nil:
		return "agent " + sel.Agent.Name + " could not be built"
	default:
		return "no agent selected"
	}
}

// ToolOutput is the result of InvokeTool: Data for a synchronous call,
// Stream for a streamed one.
type ToolOutput struct {
	Data   json.RawMessage
	Stream stream.Text
}

// InvokeTool calls a tool directly under agentName's tool policy. The
// arguments are validated first.
func (d *Dispatcher) InvokeTool(ctx context.Context, agentName, server, name string, args map[string]any, streamed bool) (ToolOutput, error) {
	r := d.roster.Load()
	if r == nil {
		return ToolOutput{}, ErrNotReady
	}
	a, ok := r.Agent(agentName)
	if !ok {
		return ToolOutput{}, fmt.Errorf("%w: %s", catalog.ErrAgentNotFound, agentName)
	}
	scoped, ok := a.(agent.ToolScoped)
	if !ok {
		return ToolOutput{}, fmt.Errorf("%w: %s", ErrNoToolScope, agentName)
	}
	reg := scoped.Tools()

	if v := d.cfg.Validator.ValidateTool(reg, server, name, args); !v.OK {
		if _, known := reg.Lookup(server, name); !known {
			return ToolOutput{}, fmt.Errorf("%w: %s/%s", tool.ErrUnregisteredTool, server, name)
		}
		return ToolOutput{}, &ValidationError{Result: v}
	}

	ctx, span := telemetry.StartSpan(ctx, "tool.invoke",
		attribute.String("mcp", server), attribute.String("tool", name), attribute.Bool("streamed", streamed))
	defer span.End()

	if streamed {
		seq, err := d.cfg.Invoker.Stream(ctx, reg, server, name, args)
		if err != nil {
			telemetry.RecordError(span, err)
			return ToolOutput{}, err
		}
		return ToolOutput{Stream: seq}, nil
	}
	data, err := d.cfg.Invoker.Invoke(ctx, reg, server, name, args)
	if err != nil {
		telemetry.RecordError(span, err)
		return ToolOutput{}, err
	}
	return ToolOutput{Data: data}, nil
}
