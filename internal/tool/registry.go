package tool

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Entry is one invocable tool, addressable only by (Server, Name).
type Entry struct {
	Server      string          `json:"server"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Path        string          `json:"path"`
	Method      string          `json:"method"`
}

// PromptTool is the projection of an entry shown to the decision oracle.
type PromptTool struct {
	MCP         string          `json:"mcp"`
	ToolName    string          `json:"tool_name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Registry is the immutable tool index of one agent: server → tool → entry.
// Only servers permitted by the agent's policy are present.
type Registry struct {
	policy  Policy
	tools   map[string]map[string]Entry
	servers ServerMap
	prompt  []PromptTool
}

// NewRegistry builds a registry from manifests filtered by policy. Tools
// without a name are skipped; method defaults to POST and path to
// /tool/<name>.
func NewRegistry(policy Policy, manifests []Manifest, servers ServerMap) *Registry {
	r := &Registry{
		policy:  policy,
		tools:   make(map[string]map[string]Entry),
		servers: maps.Clone(servers),
	}
	if r.servers == nil {
		r.servers = ServerMap{}
	}

	for _, m := range manifests {
		if !policy.Allows(m.Server) {
			continue
		}
		for _, t := range m.Tools {
			name := strings.TrimSpace(t.Name)
			if name == "" {
				continue
			}
			method := strings.ToUpper(strings.TrimSpace(t.Method))
			if method == "" {
				method = http.MethodPost
			}
			path := strings.TrimSpace(t.Path)
			if path == "" {
				path = fmt.Sprintf(defaultPathFmt, name)
			}
			if r.tools[m.Server] == nil {
				r.tools[m.Server] = make(map[string]Entry)
			}
			r.tools[m.Server][name] = Entry{
				Server:      m.Server,
				Name:        name,
				Description: t.Description,
				Parameters:  t.Parameters,
				Path:        path,
				Method:      method,
			}
		}
	}

	r.prompt = r.buildPrompt()
	return r
}

func (r *Registry) buildPrompt() []PromptTool {
	var out []PromptTool
	for _, server := range slices.Sorted(maps.Keys(r.tools)) {
		entries := slices.Collect(maps.Values(r.tools[server]))
		slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) })
		for _, e := range entries {
			out = append(out, PromptTool{
				MCP:         e.Server,
				ToolName:    e.Name,
				Description: e.Description,
				Parameters:  e.Parameters,
			})
		}
	}
	return out
}

// Policy returns the policy the registry was built with.
func (r *Registry) Policy() Policy { return r.policy }

// Lookup returns the entry registered under (server, name).
func (r *Registry) Lookup(server, name string) (Entry, bool) {
	e, ok := r.tools[server][name]
	return e, ok
}

// BaseURL returns the base URL of server from the server map.
func (r *Registry) BaseURL(server string) (string, bool) {
	u, ok := r.servers[server]
	if !ok || strings.TrimSpace(u) == "" {
		return "", false
	}
	return u, true
}

// Resolve returns the entry and base URL for (server, name), or
// ErrUnregisteredTool / ErrUnknownServerHost.
func (r *Registry) Resolve(server, name string) (Entry, string, error) {
	e, ok := r.Lookup(server, name)
	if !ok {
		return Entry{}, "", fmt.Errorf("%w: %s/%s", ErrUnregisteredTool, server, name)
	}
	base, ok := r.BaseURL(server)
	if !ok {
		return Entry{}, "", fmt.Errorf("%w: %s", ErrUnknownServerHost, server)
	}
	return e, base, nil
}

// Empty reports whether no tool is reachable.
func (r *Registry) Empty() bool { return len(r.prompt) == 0 }

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.prompt) }

// Servers returns the servers that contributed at least one tool, sorted.
func (r *Registry) Servers() []string {
	return slices.Sorted(maps.Keys(r.tools))
}

// ForPrompt returns the flat tool list ordered by server then tool name.
// This is the only representation of the registry shown to the oracle.
func (r *Registry) ForPrompt() []PromptTool {
	return slices.Clone(r.prompt)
}
