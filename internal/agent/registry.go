package agent

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/GreenD93/mcp-project/internal/catalog"
)

// Built-in kinds, selected by a descriptor's metadata.kind.
const (
	KindTool   = "tool"
	KindAction = "action"
	KindChat   = "chat"
)

// Registry maps agent names and kinds to compiled factories. A factory
// registered for a name wins over the one for the descriptor's kind.
type Registry struct {
	mu     sync.RWMutex
	kinds  map[string]Factory
	byName map[string]Factory
}

// NewRegistry returns a registry holding the built-in kinds.
func NewRegistry() *Registry {
	return &Registry{
		kinds: map[string]Factory{
			KindTool:   NewToolAgent,
			KindAction: NewActionAgent,
			KindChat:   NewChatAgent,
		},
		byName: make(map[string]Factory),
	}
}

// RegisterKind adds a factory for a new kind.
func (r *Registry) RegisterKind(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	r.kinds[kind] = f
	return nil
}

// RegisterName binds a factory to one agent name.
func (r *Registry) RegisterName(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = f
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.kinds))
}

// Build constructs the agent for desc. An empty kind means KindTool.
func (r *Registry) Build(deps Deps, desc catalog.Descriptor) (Agent, error) {
	r.mu.RLock()
	f, ok := r.byName[desc.Name]
	if !ok {
		kind := desc.Kind()
		if kind == "" {
			kind = KindTool
		}
		f, ok = r.kinds[kind]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w %q for agent %s", ErrUnknownKind, kind, desc.Name)
		}
	}
	r.mu.RUnlock()

	if deps.Oracle == nil {
		return nil, ErrNoOracle
	}
	return f(deps.withDefaults(), desc)
}
