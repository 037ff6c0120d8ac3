// Package trace records what happened during one request: an ordered event
// log plus the execution record and the final plan.
package trace

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/tool"
)

var (
	// ErrPlanAlreadySet is returned when a second plan is recorded.
	ErrPlanAlreadySet = errors.New("trace: plan already set")
	// ErrEnded is returned when a finished trace is ended again.
	ErrEnded = errors.New("trace: already ended")
)

// Event names.
const (
	EventRouteStart       = "route.start"
	EventRouteEnd         = "route.end"
	EventRouteError       = "route.error"
	EventToolSelectStart  = "tool.select.start"
	EventToolSelectEnd    = "tool.select.end"
	EventValidationEnd    = "validation.end"
	EventMCPCallStart     = "mcp.call.start"
	EventMCPCallEnd       = "mcp.call.end"
	EventMCPCallError     = "mcp.call.error"
	EventSummarizeStart   = "summarize.start"
	EventDirectStart      = "direct.start"
	EventGenerateError    = "generate.error"
	EventFallbackSelected = "fallback.selected"
	EventRunEnd           = "run.end"
)

// Mode is the plan's terminal mode.
type Mode string

// Plan modes.
const (
	ModeDirect     Mode = "direct"
	ModeMCP        Mode = "mcp"
	ModeIncomplete Mode = "incomplete"
)

// Status is the run.end tag monitoring keys on.
type Status string

// Run statuses.
const (
	StatusOK              Status = "ok"
	StatusNoTools         Status = "failed:no_tools"
	StatusValidation      Status = "failed:validation"
	StatusMCPCall         Status = "failed:mcp_call"
	StatusToolNotSelected Status = "failed:tool_not_selected"
)

// Plan is the single recorded outcome of a run.
type Plan struct {
	Mode   Mode   `json:"mode"`
	Reason string `json:"reason,omitempty"`
	MCP    string `json:"mcp,omitempty"`
	Tool   string `json:"tool,omitempty"`
}

// Event is one timestamped entry of the log. Fields carries event-specific
// detail only.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Name      string         `json:"event"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Execution captures the prompts and decisions of a run.
type Execution struct {
	Agent               string                 `json:"agent,omitempty"`
	RequestedInput      string                 `json:"requested_input"`
	AgentPrompt         string                 `json:"agent_prompt,omitempty"`
	AgentDecision       *oracle.AgentDecision  `json:"agent_decision,omitempty"`
	ToolSelectionPrompt string                 `json:"tool_selection_prompt,omitempty"`
	ToolDecision        *oracle.ToolDecision   `json:"tool_decision,omitempty"`
	Validation          *tool.ValidationResult `json:"validation,omitempty"`
	GenerationPrompt    string                 `json:"generation_prompt,omitempty"`
	Plan                *Plan                  `json:"plan,omitempty"`
}

// Trace is owned by one request and is not safe for concurrent use.
type Trace struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Status    Status    `json:"status,omitempty"`
	Events    []Event   `json:"events"`
	Execution Execution `json:"execution"`

	now func() time.Time
}

// New starts a trace for one user input.
func New(input string) *Trace {
	return newWithClock(input, time.Now)
}

func newWithClock(input string, now func() time.Time) *Trace {
	return &Trace{
		ID:        ulid.Make().String(),
		StartedAt: now(),
		Events:    []Event{},
		Execution: Execution{RequestedInput: input},
		now:       now,
	}
}

// Add appends an event.
func (t *Trace) Add(name string, fields map[string]any) {
	t.Events = append(t.Events, Event{Timestamp: t.now(), Name: name, Fields: fields})
}

// SetPlan records the plan. A run has exactly one.
func (t *Trace) SetPlan(p Plan) error {
	if t.Execution.Plan != nil {
		return ErrPlanAlreadySet
	}
	t.Execution.Plan = &p
	return nil
}

// Plan returns the recorded plan.
func (t *Trace) Plan() (Plan, bool) {
	if t.Execution.Plan == nil {
		return Plan{}, false
	}
	return *t.Execution.Plan, true
}

// End appends run.end with status.
func (t *Trace) End(status Status) error {
	if t.Status != "" {
		return ErrEnded
	}
	t.Status = status
	t.EndedAt = t.now()
	fields := map[string]any{"status": string(status)}
	if p := t.Execution.Plan; p != nil {
		fields["mode"] = string(p.Mode)
	}
	t.Add(EventRunEnd, fields)
	return nil
}

// Ended reports whether End was called.
func (t *Trace) Ended() bool { return t.Status != "" }

// Duration is the time between start and end, or zero while running.
func (t *Trace) Duration() time.Duration {
	if t.EndedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// Find returns the first event with the given name.
func (t *Trace) Find(name string) (Event, bool) {
	for _, e := range t.Events {
		if e.Name == name {
			return e, true
		}
	}
	return Event{}, false
}

// Sink receives finished traces.
type Sink interface {
	Record(ctx context.Context, t *Trace) error
}

// NopSink discards traces.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, *Trace) error { return nil }
