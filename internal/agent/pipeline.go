package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/stream"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/tool"
	"github.com/GreenD93/mcp-project/internal/trace"
)

// Plan reasons written by the pipeline itself.
const (
	ReasonNoTools          = "no tools available"
	ReasonValidationFailed = "validation_failed"
	ReasonMCPCallFailed    = "mcp_call_failed"
	ReasonActionPayload    = "action_payload"
	ReasonLLMDirect        = "llm_decision_direct"
)

// previewLimit bounds the tool data preview recorded in summarize.start.
const previewLimit = 500

const (
	apologyText       = "Sorry, I could not prepare an answer right now. Please try again in a moment."
	interruptedText   = "\n\n[The answer was interrupted. Please try again.]"
	validationHeading = "[Tool arguments failed validation, answering directly]\n"
)

// Pipeline is the agent implementation behind every built-in kind. It is
// immutable after construction and safe for concurrent requests; all
// per-request state lives in the trace.
type Pipeline struct {
	name       string
	role       string
	tools      *tool.Registry
	actionOnly bool
	deps       Deps
	logger     *slog.Logger
}

// NewToolAgent builds an agent that calls the selected tool and summarizes
// its result.
func NewToolAgent(deps Deps, desc catalog.Descriptor) (Agent, error) {
	return newPipeline(deps, desc, tool.ParsePolicy(desc.Tools()), false), nil
}

// NewActionAgent builds an agent that stops after validation and returns the
// tool decision as an action payload.
func NewActionAgent(deps Deps, desc catalog.Descriptor) (Agent, error) {
	return newPipeline(deps, desc, tool.ParsePolicy(desc.Tools()), true), nil
}

// NewChatAgent builds an agent without tools, whatever its descriptor says.
func NewChatAgent(deps Deps, desc catalog.Descriptor) (Agent, error) {
	return newPipeline(deps, desc, tool.NonePolicy(), false), nil
}

func newPipeline(deps Deps, desc catalog.Descriptor, policy tool.Policy, actionOnly bool) *Pipeline {
	deps = deps.withDefaults()
	return &Pipeline{
		name:       desc.Name,
		role:       oracle.Role(desc.RoleText(), desc.Description),
		tools:      tool.NewRegistry(policy, deps.Manifests, deps.Servers),
		actionOnly: actionOnly,
		deps:       deps,
		logger:     deps.Logger.With("agent", desc.Name),
	}
}

// Name implements Agent.
func (p *Pipeline) Name() string { return p.name }

// Tools implements ToolScoped.
func (p *Pipeline) Tools() *tool.Registry { return p.tools }

// BuildToolSelectionContext implements Agent.
func (p *Pipeline) BuildToolSelectionContext(userText string) string {
	return oracle.ToolSelectionPrompt(p.role, userText, p.tools.ForPrompt())
}

// Execute implements Agent. Every path ends in finish, which writes the
// single plan and the run.end event.
func (p *Pipeline) Execute(ctx context.Context, req Request) Result {
	tr := req.Trace
	if tr == nil {
		tr = trace.New(req.Text)
	}
	tr.Execution.Agent = p.name

	ctx, span := telemetry.StartSpan(ctx, "pipeline.execute", attribute.String("agent", p.name))
	defer span.End()

	if p.tools.Empty() {
		p.logger.Debug("pipeline: no tools, answering directly")
		plan := trace.Plan{Mode: trace.ModeDirect, Reason: ReasonNoTools}
		answer := p.generate(ctx, tr, trace.EventDirectStart, plan, oracle.DirectPrompt(p.role, req.Text))
		res := p.finish(tr, plan, trace.StatusNoTools, answer)
		span.SetAttributes(attribute.String("status", string(res.Status)))
		return res
	}

	d := p.selectTool(ctx, tr, req.Text)
	res := p.dispatch(ctx, tr, req.Text, d)
	span.SetAttributes(attribute.String("status", string(res.Status)))
	return res
}

// selectTool makes the single tool-selection call.
func (p *Pipeline) selectTool(ctx context.Context, tr *trace.Trace, userText string) oracle.ToolDecision {
	prompt := p.BuildToolSelectionContext(userText)
	tr.Execution.ToolSelectionPrompt = prompt
	tr.Add(trace.EventToolSelectStart, map[string]any{"tools": p.tools.Len()})

	var d oracle.ToolDecision
	raw, err := p.deps.Oracle.Decide(ctx, prompt)
	if err != nil {
		p.logger.Warn("pipeline: tool selection call failed", "error", err)
		d = oracle.ToolDecision{Route: oracle.RouteDirect, Error: oracle.ErrorOracle, Reason: err.Error()}
	} else if d, err = oracle.ParseToolDecision(raw); err != nil {
		p.logger.Warn("pipeline: unparseable tool decision", "error", err)
	}

	if d.Route == oracle.RouteTool {
		if _, ok := p.tools.Lookup(d.MCP, d.ToolName); !ok {
			p.logger.Info("pipeline: oracle selected an unregistered tool", "mcp", d.MCP, "tool", d.ToolName)
			d = oracle.ToolDecision{
				Route:       oracle.RouteDirect,
				MCP:         d.MCP,
				ToolName:    d.ToolName,
				Reason:      d.Reason,
				Error:       oracle.ErrorMissingKeys,
				MissingKeys: []string{d.MCP + "/" + d.ToolName},
				Raw:         raw,
			}
		}
	}

	tr.Execution.ToolDecision = &d
	fields := map[string]any{"route": string(d.Route)}
	if d.MCP != "" {
		fields["mcp"] = d.MCP
	}
	if d.ToolName != "" {
		fields["tool"] = d.ToolName
	}
	if d.Error != "" {
		fields["error"] = d.Error
	}
	tr.Add(trace.EventToolSelectEnd, fields)
	return d
}

func (p *Pipeline) dispatch(ctx context.Context, tr *trace.Trace, userText string, d oracle.ToolDecision) Result {
	switch d.Route {
	case oracle.RouteToolIncomplete:
		plan := trace.Plan{Mode: trace.ModeIncomplete, Reason: d.Reason}
		answer := p.generate(ctx, tr, trace.EventDirectStart, plan, oracle.IncompletePrompt(p.role, userText, d.Reason))
		return p.finish(tr, plan, trace.StatusToolNotSelected, answer)
	case oracle.RouteTool:
		return p.runTool(ctx, tr, userText, d)
	default:
		plan := trace.Plan{Mode: trace.ModeDirect, Reason: directReason(d)}
		answer := p.generate(ctx, tr, trace.EventDirectStart, plan, oracle.DirectPrompt(p.role, userText))
		return p.finish(tr, plan, trace.StatusToolNotSelected, answer)
	}
}

func directReason(d oracle.ToolDecision) string {
	switch {
	case d.Error == oracle.ErrorMissingKeys:
		return oracle.ErrorMissingKeys + ": " + strings.Join(d.MissingKeys, ", ")
	case d.Error == oracle.ErrorOracle:
		return oracle.ErrorOracle + ": " + d.Reason
	case d.Error != "":
		return d.Error
	case d.Reason != "":
		return d.Reason
	default:
		return ReasonLLMDirect
	}
}

// runTool validates, then invokes (or hands back) the selected tool.
func (p *Pipeline) runTool(ctx context.Context, tr *trace.Trace, userText string, d oracle.ToolDecision) Result {
	entry, _ := p.tools.Lookup(d.MCP, d.ToolName)

	v := p.deps.Validator.Validate(entry.Parameters, d.Arguments)
	tr.Execution.Validation = &v
	tr.Add(trace.EventValidationEnd, map[string]any{
		"ok":       v.OK,
		"errors":   v.Errors,
		"warnings": v.Warnings,
	})

	if !v.OK {
		p.logger.Info("pipeline: arguments failed validation", "mcp", d.MCP, "tool", d.ToolName, "errors", len(v.Errors))
		plan := trace.Plan{Mode: trace.ModeDirect, Reason: ReasonValidationFailed}
		notice := []string{validationHeading}
		for _, e := range v.Errors {
			notice = append(notice, "- "+e+"\n")
		}
		answer := p.generate(ctx, tr, trace.EventDirectStart, plan, oracle.DirectPrompt(p.role, userText), notice...)
		res := p.finish(tr, plan, trace.StatusValidation, answer)
		res.Validation = &v
		return res
	}

	if p.actionOnly {
		plan := trace.Plan{Mode: trace.ModeMCP, Reason: ReasonActionPayload, MCP: d.MCP, Tool: d.ToolName}
		res := p.finish(tr, plan, trace.StatusOK, stream.Static(actionText(d)))
		res.Action = &Action{MCP: d.MCP, Tool: d.ToolName, Arguments: d.Arguments, Reason: d.Reason}
		res.Validation = &v
		return res
	}

	data, err := p.invoke(ctx, tr, d)
	if err != nil {
		reason := fmt.Sprintf("%s: %v", ReasonMCPCallFailed, err)
		plan := trace.Plan{Mode: trace.ModeDirect, Reason: reason}
		answer := p.generate(ctx, tr, trace.EventDirectStart, plan, oracle.FailurePrompt(p.role, userText, reason))
		res := p.finish(tr, plan, trace.StatusMCPCall, answer)
		res.Validation = &v
		return res
	}

	text := renderData(data)
	plan := trace.Plan{Mode: trace.ModeMCP, Reason: d.Reason, MCP: d.MCP, Tool: d.ToolName}
	tr.Add(trace.EventSummarizeStart, map[string]any{"preview": preview(text, previewLimit)})
	answer := p.generate(ctx, tr, "", plan, oracle.SummaryPrompt(p.role, userText, d.MCP, d.ToolName, text))
	res := p.finish(tr, plan, trace.StatusOK, answer)
	res.Validation = &v
	return res
}

func (p *Pipeline) invoke(ctx context.Context, tr *trace.Trace, d oracle.ToolDecision) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "tool.invoke",
		attribute.String("mcp", d.MCP), attribute.String("tool", d.ToolName))
	defer span.End()

	tr.Add(trace.EventMCPCallStart, map[string]any{"mcp": d.MCP, "tool": d.ToolName, "arguments": d.Arguments})
	start := time.Now()
	data, err := p.deps.Invoker.Invoke(ctx, p.tools, d.MCP, d.ToolName, d.Arguments)
	elapsed := time.Since(start)
	p.deps.Metrics.ObserveToolCall(d.MCP, d.ToolName, err, elapsed)

	if err != nil {
		telemetry.RecordError(span, err)
		p.logger.Warn("pipeline: tool call failed", "mcp", d.MCP, "tool", d.ToolName, "error", err)
		tr.Add(trace.EventMCPCallError, map[string]any{"mcp": d.MCP, "tool": d.ToolName, "error": err.Error()})
		return nil, err
	}
	telemetry.SetOK(span)
	tr.Add(trace.EventMCPCallEnd, map[string]any{
		"mcp":         d.MCP,
		"tool":        d.ToolName,
		"bytes":       len(data),
		"duration_ms": elapsed.Milliseconds(),
	})
	return data, nil
}

// generate starts the answer generation. A failure to start becomes a canned
// apology; a failure midway ends the answer with a short notice.
func (p *Pipeline) generate(ctx context.Context, tr *trace.Trace, event string, plan trace.Plan, prompt oracle.Prompt, prefix ...string) stream.Text {
	if event != "" {
		tr.Add(event, map[string]any{"mode": string(plan.Mode), "reason": plan.Reason})
	}
	tr.Execution.GenerationPrompt = prompt.String()

	seq, err := p.deps.Oracle.Generate(ctx, prompt)
	if err != nil {
		p.logger.Warn("pipeline: generation failed", "error", err)
		tr.Add(trace.EventGenerateError, map[string]any{"error": err.Error()})
		return stream.Static(append(prefix, apologyText)...)
	}

	traceID := tr.ID
	seq = stream.WithTrailer(seq, func(err error) string {
		p.logger.Warn("pipeline: generation interrupted", "trace_id", traceID, "error", err)
		return interruptedText
	})
	if len(prefix) > 0 {
		return stream.Concat(stream.Static(prefix...), seq)
	}
	return seq
}

func (p *Pipeline) finish(tr *trace.Trace, plan trace.Plan, status trace.Status, answer stream.Text) Result {
	if err := tr.SetPlan(plan); err != nil {
		p.logger.Error("pipeline: plan written twice", "error", err)
	}
	if err := tr.End(status); err != nil {
		p.logger.Error("pipeline: run ended twice", "error", err)
	}
	p.logger.Info("pipeline: run finished", "trace_id", tr.ID, "mode", plan.Mode, "status", status)
	return Result{Plan: plan, Status: status, Answer: answer, Trace: tr}
}

// renderData pretty-prints a JSON tool result for the summary prompt.
func renderData(data json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

func preview(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

func actionText(d oracle.ToolDecision) string {
	args, _ := json.Marshal(d.Arguments)
	return fmt.Sprintf("Ready to run %s/%s with %s. Please confirm to proceed.", d.MCP, d.ToolName, args)
}
