package router

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/trace"
)

// Decider is the oracle call the router depends on.
type Decider interface {
	Decide(ctx context.Context, prompt string) (string, error)
}

// Selection is the outcome of routing. Agent is nil when no catalogued agent
// was chosen and the caller must fall back.
type Selection struct {
	Agent    *catalog.Descriptor
	Decision oracle.AgentDecision
	Prompt   string
}

// Router picks an agent for a user request.
type Router struct {
	oracle Decider
	logger *slog.Logger
}

// New creates a Router.
func New(d Decider, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{oracle: d, logger: logger.With("component", "router")}
}

// Briefs projects the catalog for the routing prompt.
func Briefs(cat *catalog.Catalog) []oracle.AgentBrief {
	descs := cat.Descriptors()
	out := make([]oracle.AgentBrief, 0, len(descs))
	for _, d := range descs {
		kw := d.Keywords()
		if kw == nil {
			kw = []string{}
		}
		out = append(out, oracle.AgentBrief{Name: d.Name, Description: d.Description, Keywords: kw})
	}
	return out
}

// Route asks the oracle once which agent should handle userText. Oracle and
// parse failures degrade to a DIRECT decision with an error marker; they are
// never returned.
func (r *Router) Route(ctx context.Context, cat *catalog.Catalog, userText string, tr *trace.Trace) Selection {
	ctx, span := telemetry.StartSpan(ctx, "router.route", attribute.Int("agents", cat.Len()))
	defer span.End()

	prompt := oracle.AgentSelectionPrompt(userText, Briefs(cat))
	sel := Selection{Prompt: prompt}
	tr.Execution.AgentPrompt = prompt
	tr.Add(trace.EventRouteStart, map[string]any{"agents": cat.Len()})

	if cat.Len() == 0 {
		r.logger.Warn("router: empty catalog, skipping oracle", "error", ErrNoAgents)
		sel.Decision = oracle.AgentDecision{Route: oracle.RouteDirect, Reason: ErrNoAgents.Error()}
		return r.finish(sel, tr)
	}

	raw, err := r.oracle.Decide(ctx, prompt)
	if err != nil {
		telemetry.RecordError(span, err)
		r.logger.Warn("router: oracle call failed", "error", err)
		tr.Add(trace.EventRouteError, map[string]any{"error": err.Error()})
		sel.Decision = oracle.AgentDecision{Route: oracle.RouteDirect, Error: oracle.ErrorOracle, Reason: err.Error()}
		return r.finish(sel, tr)
	}

	d, err := oracle.ParseAgentDecision(raw)
	if err != nil {
		r.logger.Warn("router: unparseable agent decision", "error", err)
	}
	sel.Decision = d

	if d.Route == oracle.RouteAgent {
		if desc, ok := cat.Lookup(d.AgentName); ok {
			sel.Agent = &desc
		} else {
			r.logger.Info("router: oracle named an unknown agent", "agent", d.AgentName)
		}
	}
	span.SetAttributes(attribute.Bool("selected", sel.Agent != nil))
	telemetry.SetOK(span)
	return r.finish(sel, tr)
}

func (r *Router) finish(sel Selection, tr *trace.Trace) Selection {
	d := sel.Decision
	tr.Execution.AgentDecision = &d

	fields := map[string]any{"route": string(d.Route), "selected": sel.Agent != nil}
	if sel.Agent != nil {
		fields["agent"] = sel.Agent.Name
	} else if d.AgentName != "" {
		fields["requested_agent"] = d.AgentName
	}
	if d.Reason != "" {
		fields["reason"] = d.Reason
	}
	if d.Error != "" {
		fields["error"] = d.Error
	}
	tr.Add(trace.EventRouteEnd, fields)
	return sel
}
