package core

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registration errors. RegisterModule panics with them since it only runs
// from init().
var (
	ErrEmptyModuleID     = errors.New("core: module ID must not be empty")
	ErrNoConstructor     = errors.New("core: module has no New function")
	ErrDuplicateModuleID = errors.New("core: module already registered")
)

// moduleTable holds the modules compiled into the binary.
type moduleTable struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

func (t *moduleTable) add(info ModuleInfo) error {
	switch {
	case info.ID == "":
		return ErrEmptyModuleID
	case info.New == nil:
		return fmt.Errorf("%w: %s", ErrNoConstructor, info.ID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.byID[info.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateModuleID, info.ID)
	}
	t.byID[info.ID] = info
	return nil
}

func (t *moduleTable) sorted(keep func(ModuleInfo) bool) []ModuleInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ModuleInfo, 0, len(t.byID))
	for info := range maps.Values(t.byID) {
		if keep == nil || keep(info) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

var compiled = &moduleTable{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the compiled-in table. Providers, trace
// sinks and the gateway call it from init().
func RegisterModule(instance Module) {
	if err := compiled.add(instance.ModuleInfo()); err != nil {
		panic(err)
	}
}

// GetModule returns the compiled-in module with the given ID.
func GetModule(id string) (ModuleInfo, bool) {
	compiled.mu.RLock()
	defer compiled.mu.RUnlock()
	info, ok := compiled.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns every compiled-in module sorted by ID.
func GetModules() []ModuleInfo {
	return compiled.sorted(nil)
}

// GetModulesByNamespace returns the compiled-in modules of one namespace,
// e.g. "provider" for the decision oracle backends.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return compiled.sorted(func(info ModuleInfo) bool {
		return info.ID.Namespace() == namespace
	})
}

// resetRegistry clears the table. Only for testing.
func resetRegistry() {
	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	compiled.byID = make(map[ModuleID]ModuleInfo)
}
