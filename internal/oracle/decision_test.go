package oracle

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func TestParseToolDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantRoute Route
		wantError string
		wantErr   bool
	}{
		{"tool", `{"route":"TOOL","mcp":"news","tool_name":"get_news","arguments":{"company":"Acme"}}`, RouteTool, "", false},
		{"server alias", `{"route":"TOOL","server":"news","tool_name":"get_news"}`, RouteTool, "", false},
		{"lower case route", ` {"route":"direct","reason":"chit-chat"} `, RouteDirect, "", false},
		{"incomplete", `{"route":"TOOL_INCOMPLETE","reason":"no company"}`, RouteToolIncomplete, "", false},
		{"missing tool name", `{"route":"TOOL","mcp":"news"}`, RouteDirect, ErrorMissingKeys, false},
		{"unknown route", `{"route":"MAYBE"}`, RouteDirect, ErrorUnknownRoute, false},
		{"prose", `Sure! I would call the news tool.`, RouteDirect, ErrorParse, true},
		{"code fence", "```json\n{\"route\":\"DIRECT\"}\n```", RouteDirect, ErrorParse, true},
		{"trailing data", `{"route":"DIRECT"} {"route":"TOOL"}`, RouteDirect, ErrorParse, true},
		{"array", `[{"route":"TOOL"}]`, RouteDirect, ErrorParse, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := ParseToolDecision(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrOracleParse) {
				t.Errorf("expected ErrOracleParse, got %v", err)
			}
			if d.Route != tt.wantRoute {
				t.Errorf("expected route %s, got %s", tt.wantRoute, d.Route)
			}
			if d.Error != tt.wantError {
				t.Errorf("expected error marker %q, got %q", tt.wantError, d.Error)
			}
		})
	}
}

func TestParseToolDecision_ServerAliasAndNumbers(t *testing.T) {
	t.Parallel()

	d, err := ParseToolDecision(`{"route":"TOOL","server":"transfer","tool_name":"transfer","arguments":{"amount":10000}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.MCP != "transfer" {
		t.Errorf("expected server alias to fill mcp, got %q", d.MCP)
	}
	n, ok := d.Arguments["amount"].(json.Number)
	if !ok || n.String() != "10000" {
		t.Errorf("expected json.Number 10000, got %#v", d.Arguments["amount"])
	}
}

func TestParseToolDecision_MissingKeysListed(t *testing.T) {
	t.Parallel()

	d, _ := ParseToolDecision(`{"route":"TOOL","arguments":{}}`)
	if !slices.Equal(d.MissingKeys, []string{"mcp", "tool_name"}) {
		t.Errorf("expected both keys missing, got %v", d.MissingKeys)
	}
	if d.Arguments != nil {
		t.Errorf("expected no arguments on degraded decision, got %v", d.Arguments)
	}
}

func TestParseToolDecision_DefaultsArguments(t *testing.T) {
	t.Parallel()

	d, _ := ParseToolDecision(`{"route":"TOOL","mcp":"news","tool_name":"get_news"}`)
	if d.Arguments == nil {
		t.Error("expected empty, non-nil arguments")
	}
}

func TestParseAgentDecision(t *testing.T) {
	t.Parallel()

	d, err := ParseAgentDecision(`{"route":"AGENT","agent_name":" news_agent ","reason":"news"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Route != RouteAgent || d.AgentName != "news_agent" {
		t.Errorf("unexpected decision: %+v", d)
	}

	d, err = ParseAgentDecision("not json")
	if !errors.Is(err, ErrOracleParse) {
		t.Fatalf("expected ErrOracleParse, got %v", err)
	}
	if d.Route != RouteDirect || d.Error != ErrorParse {
		t.Errorf("expected DIRECT/parse_error, got %+v", d)
	}

	d, _ = ParseAgentDecision(`{"route":"TOOL"}`)
	if d.Route != RouteDirect || d.Error != ErrorUnknownRoute {
		t.Errorf("expected DIRECT/unknown_route, got %+v", d)
	}
}
