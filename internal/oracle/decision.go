// Package oracle holds the contract with the decision oracle: the prompts
// sent to it, the JSON decisions parsed back, and a client over a
// provider.Provider.
package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrOracleParse marks an oracle reply that is not a single JSON object.
var ErrOracleParse = errors.New("oracle: reply is not a JSON decision")

// Route is the routing verdict carried by a decision.
type Route string

// Routes understood by the router and the pipeline.
const (
	RouteAgent          Route = "AGENT"
	RouteTool           Route = "TOOL"
	RouteToolIncomplete Route = "TOOL_INCOMPLETE"
	RouteDirect         Route = "DIRECT"
)

// Decision error markers. A decision carrying one of these was degraded to
// DIRECT by the parser.
const (
	ErrorParse        = "parse_error"
	ErrorMissingKeys  = "missing_keys"
	ErrorUnknownRoute = "unknown_route"
	ErrorOracle       = "oracle_error"
)

// AgentDecision is the parsed agent-selection reply.
type AgentDecision struct {
	Route     Route  `json:"route"`
	AgentName string `json:"agent_name,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// ToolDecision is the parsed tool-selection reply.
type ToolDecision struct {
	Route       Route          `json:"route"`
	MCP         string         `json:"mcp,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Error       string         `json:"error,omitempty"`
	MissingKeys []string       `json:"missing_keys,omitempty"`
	Raw         string         `json:"raw,omitempty"`
}

// wireDecision is the superset of keys either decision may carry.
type wireDecision struct {
	Route     string         `json:"route"`
	AgentName string         `json:"agent_name"`
	MCP       string         `json:"mcp"`
	Server    string         `json:"server"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Reason    string         `json:"reason"`
}

// decode reads exactly one JSON object from raw. Numbers stay json.Number so
// integer arguments survive the round trip to the tool server.
func decode(raw string) (wireDecision, error) {
	var w wireDecision
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return w, fmt.Errorf("%w: not an object", ErrOracleParse)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return w, fmt.Errorf("%w: %v", ErrOracleParse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return w, fmt.Errorf("%w: trailing data after object", ErrOracleParse)
	}
	return w, nil
}

func normalizeRoute(s string) Route {
	return Route(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseAgentDecision parses an agent-selection reply. A reply that is not a
// JSON object degrades to DIRECT with a parse_error marker and returns an
// error wrapping ErrOracleParse; the decision is usable either way.
func ParseAgentDecision(raw string) (AgentDecision, error) {
	w, err := decode(raw)
	if err != nil {
		return AgentDecision{Route: RouteDirect, Error: ErrorParse, Raw: raw}, err
	}
	d := AgentDecision{
		Route:     normalizeRoute(w.Route),
		AgentName: strings.TrimSpace(w.AgentName),
		Reason:    w.Reason,
	}
	switch d.Route {
	case RouteAgent, RouteDirect:
	default:
		d.Route, d.Error, d.Raw = RouteDirect, ErrorUnknownRoute, raw
	}
	return d, nil
}

// ParseToolDecision parses a tool-selection reply.
//
// A "server" key is accepted in place of "mcp". A TOOL decision without both
// mcp and tool_name degrades to DIRECT with a missing_keys marker. An
// unrecognized route degrades to DIRECT with unknown_route.
func ParseToolDecision(raw string) (ToolDecision, error) {
	w, err := decode(raw)
	if err != nil {
		return ToolDecision{Route: RouteDirect, Error: ErrorParse, Raw: raw}, err
	}
	if w.MCP == "" {
		w.MCP = w.Server
	}

	d := ToolDecision{
		Route:    normalizeRoute(w.Route),
		MCP:      strings.TrimSpace(w.MCP),
		ToolName: strings.TrimSpace(w.ToolName),
		Reason:   w.Reason,
	}
	switch d.Route {
	case RouteTool:
		if d.MCP == "" {
			d.MissingKeys = append(d.MissingKeys, "mcp")
		}
		if d.ToolName == "" {
			d.MissingKeys = append(d.MissingKeys, "tool_name")
		}
		if len(d.MissingKeys) > 0 {
			d.Route, d.Error, d.Raw = RouteDirect, ErrorMissingKeys, raw
			return d, nil
		}
		d.Arguments = w.Arguments
		if d.Arguments == nil {
			d.Arguments = map[string]any{}
		}
	case RouteToolIncomplete, RouteDirect:
	default:
		d.Route, d.Error, d.Raw = RouteDirect, ErrorUnknownRoute, raw
	}
	return d, nil
}
