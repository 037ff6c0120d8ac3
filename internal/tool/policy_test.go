package tool

import (
	"slices"
	"testing"
)

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     any
		kind    PolicyKind
		servers []string
	}{
		{name: "absent", raw: nil, kind: PolicyNone},
		{name: "empty string", raw: "", kind: PolicyNone},
		{name: "empty list", raw: []any{}, kind: PolicyNone},
		{name: "wildcard", raw: "*", kind: PolicyAll},
		{name: "wildcard in list", raw: []any{"news", "*"}, kind: PolicyAll},
		{name: "allowlist", raw: []any{"news", "mail_sender", "news"}, kind: PolicyAllowlist, servers: []string{"mail_sender", "news"}},
		{name: "padded wildcard", raw: " * ", kind: PolicyAll},
		{name: "bare name grants nothing", raw: "news", kind: PolicyNone},
		{name: "bare names grant nothing", raw: "news, transfer", kind: PolicyNone},
		{name: "string slice", raw: []string{"transfer"}, kind: PolicyAllowlist, servers: []string{"transfer"}},
		{name: "non-strings ignored", raw: []any{1, true}, kind: PolicyNone},
		{name: "unknown shape", raw: map[string]any{"a": 1}, kind: PolicyNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := ParsePolicy(tt.raw)
			if p.Kind() != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, p.Kind())
			}
			if !slices.Equal(p.Servers(), tt.servers) {
				t.Errorf("expected servers %v, got %v", tt.servers, p.Servers())
			}
		})
	}
}

func TestParsePolicy_BareNameHidesServer(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(ParsePolicy("news"), []Manifest{{
		Server: "news",
		Tools:  []ManifestTool{{Name: "get_news", Description: "news"}},
	}}, ServerMap{"news": "http://news.local"})
	if !reg.Empty() || reg.Len() != 0 {
		t.Fatalf("expected no visible tools, got %d", reg.Len())
	}
	if _, ok := reg.Lookup("news", "get_news"); ok {
		t.Error("expected get_news to stay hidden")
	}
}

func TestPolicy_Allows(t *testing.T) {
	t.Parallel()

	if NonePolicy().Allows("news") {
		t.Error("none policy must not allow any server")
	}
	if !AllPolicy().Allows("anything") {
		t.Error("all policy must allow every server")
	}
	p := AllowlistPolicy("news")
	if !p.Allows("news") || p.Allows("transfer") {
		t.Errorf("unexpected allowlist behaviour for %s", p)
	}
	var zero Policy
	if zero.Kind() != PolicyNone || zero.Allows("news") {
		t.Error("zero policy must behave as none")
	}
}
