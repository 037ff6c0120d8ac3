package core

// ModuleID is a dotted module identifier such as "provider.openai" or
// "trace.sqlite". The segment before the first dot is the namespace.
type ModuleID string

// Namespace returns the first segment of the ID.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every pluggable component.
type Module interface {
	ModuleInfo() ModuleInfo
}
