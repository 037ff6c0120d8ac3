package dispatch

import (
	"fmt"
	"time"

	"github.com/GreenD93/mcp-project/internal/agent"
	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/tool"
)

// DefaultFallbackAgent handles requests the router could not place.
const DefaultFallbackAgent = "basic_agent"

// Roster is an immutable snapshot: the catalog plus one built agent per
// descriptor, each scoped to its own tool registry.
type Roster struct {
	Catalog  *catalog.Catalog
	LoadedAt time.Time
	// Problems lists entries skipped while building this snapshot.
	Problems []error

	agents   map[string]agent.Agent
	fallback agent.Agent
}

// Agent returns the agent built for name.
func (r *Roster) Agent(name string) (agent.Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Fallback returns the agent used when routing selects none.
func (r *Roster) Fallback() agent.Agent { return r.fallback }

// AgentInfo is the operator-facing view of one catalogued agent.
type AgentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Keywords    []string `json:"keywords"`
	Kind        string   `json:"kind"`
	Tools       string   `json:"tools"`
	ToolCount   int      `json:"tool_count"`
	Source      string   `json:"source,omitempty"`
}

// Agents lists the catalogued agents in discovery order.
func (r *Roster) Agents() []AgentInfo {
	descs := r.Catalog.Descriptors()
	out := make([]AgentInfo, 0, len(descs))
	for _, d := range descs {
		info := AgentInfo{
			Name:        d.Name,
			Description: d.Description,
			Version:     d.Version,
			Keywords:    d.Keywords(),
			Kind:        d.Kind(),
			Tools:       tool.ParsePolicy(d.Tools()).String(),
			Source:      d.Source,
		}
		if info.Kind == "" {
			info.Kind = agent.KindTool
		}
		if info.Keywords == nil {
			info.Keywords = []string{}
		}
		if a, ok := r.agents[d.Name]; ok {
			if scoped, ok := a.(agent.ToolScoped); ok {
				info.ToolCount = scoped.Tools().Len()
			}
		}
		out = append(out, info)
	}
	return out
}

// buildRoster constructs every agent of cat. Agents that fail to build are
// left out and reported in Problems.
func buildRoster(cat *catalog.Catalog, kinds *agent.Registry, deps agent.Deps, fallbackName string) (*Roster, error) {
	r := &Roster{
		Catalog:  cat,
		LoadedAt: time.Now(),
		agents:   make(map[string]agent.Agent, cat.Len()),
	}
	for _, d := range cat.Descriptors() {
		a, err := kinds.Build(deps, d)
		if err != nil {
			r.Problems = append(r.Problems, fmt.Errorf("building agent %s: %w", d.Name, err))
			continue
		}
		r.agents[d.Name] = a
	}

	if a, ok := r.agents[fallbackName]; ok {
		r.fallback = a
		return r, nil
	}
	fb, err := agent.NewChatAgent(deps, catalog.Descriptor{
		Name:        fallbackName,
		Description: "General assistant for requests no other agent handles.",
	})
	if err != nil {
		return nil, fmt.Errorf("building fallback agent: %w", err)
	}
	r.fallback = fb
	return r, nil
}
