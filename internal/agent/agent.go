// Package agent builds agents from catalog descriptors and runs the
// per-agent execution pipeline: tool selection, argument validation, tool
// invocation and the direct and fallback answers.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/stream"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/tool"
	"github.com/GreenD93/mcp-project/internal/trace"
)

// Sentinel errors for agent construction.
var (
	ErrUnknownKind   = errors.New("agent: unknown kind")
	ErrDuplicateKind = errors.New("agent: kind already registered")
	ErrNoOracle      = errors.New("agent: no oracle configured")
	ErrNoInvoker     = errors.New("agent: no tool invoker configured")
)

// Agent handles one request on behalf of a catalogued descriptor.
type Agent interface {
	Name() string
	// BuildToolSelectionContext renders the prompt shown to the oracle when
	// choosing a tool. It is the only view of the tools the oracle gets.
	BuildToolSelectionContext(userText string) string
	// Execute runs the request to a terminal state. It never returns an
	// error: failures become a lower-confidence answer and a trace record.
	Execute(ctx context.Context, req Request) Result
}

// ToolScoped is implemented by agents that own a tool registry.
type ToolScoped interface {
	Tools() *tool.Registry
}

// Request is one user turn handed to an agent.
type Request struct {
	Text  string
	Trace *trace.Trace
}

// Action is the structured payload returned by action agents in place of
// calling the tool, for a caller that asks the user to confirm first.
type Action struct {
	MCP       string         `json:"mcp"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Reason    string         `json:"reason,omitempty"`
}

// Result is the outcome of Execute. Answer is lazy: the generation runs
// while the caller ranges over it.
type Result struct {
	Plan       trace.Plan
	Status     trace.Status
	Answer     stream.Text
	Action     *Action
	Validation *tool.ValidationResult
	Trace      *trace.Trace
}

// Oracle is the subset of the oracle client agents use.
type Oracle interface {
	Decide(ctx context.Context, prompt string) (string, error)
	Generate(ctx context.Context, p oracle.Prompt) (stream.Text, error)
}

// Invoker calls tools through a registry.
type Invoker interface {
	Invoke(ctx context.Context, reg *tool.Registry, server, name string, args map[string]any) (json.RawMessage, error)
}

// Deps are the shared collaborators every agent is built with. Manifests and
// Servers belong to the roster snapshot the agent is built for.
type Deps struct {
	Oracle    Oracle
	Invoker   Invoker
	Validator *tool.Validator
	Manifests []tool.Manifest
	Servers   tool.ServerMap
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Validator == nil {
		d.Validator = tool.NewValidator(tool.ValidationStrict, d.Logger)
	}
	if d.Invoker == nil {
		d.Invoker = noInvoker{}
	}
	return d
}

// noInvoker stands in when Deps carries no invoker. Chat agents never call
// it; tool calls fail and take the mcp_call_failed path.
type noInvoker struct{}

func (noInvoker) Invoke(context.Context, *tool.Registry, string, string, map[string]any) (json.RawMessage, error) {
	return nil, ErrNoInvoker
}

// Factory builds an agent for desc.
type Factory func(deps Deps, desc catalog.Descriptor) (Agent, error)
