package tool

import (
	"slices"
	"strings"
)

// PolicyKind is the variant of a tool policy.
type PolicyKind string

// Policy kinds.
const (
	PolicyNone      PolicyKind = "none"
	PolicyAll       PolicyKind = "all"
	PolicyAllowlist PolicyKind = "allowlist"
)

// Wildcard grants every registered server.
const Wildcard = "*"

// Policy restricts which tool servers an agent may see. Exactly one kind is
// active; a Policy is computed once and never mutated.
type Policy struct {
	kind    PolicyKind
	servers []string
}

// NonePolicy grants no servers.
func NonePolicy() Policy { return Policy{kind: PolicyNone} }

// AllPolicy grants every server.
func AllPolicy() Policy { return Policy{kind: PolicyAll} }

// AllowlistPolicy grants the named servers. An empty list is NonePolicy.
func AllowlistPolicy(servers ...string) Policy {
	var cleaned []string
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if s == Wildcard {
			return AllPolicy()
		}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return NonePolicy()
	}
	slices.Sort(cleaned)
	return Policy{kind: PolicyAllowlist, servers: slices.Compact(cleaned)}
}

// ParsePolicy derives a policy from an agent's metadata.tools value:
// absent or empty grants nothing, "*" grants everything, and a list of
// names grants those servers. Any other string, a bare server name
// included, and unrecognised shapes grant nothing.
func ParsePolicy(raw any) Policy {
	switch v := raw.(type) {
	case nil:
		return NonePolicy()
	case string:
		if strings.TrimSpace(v) == Wildcard {
			return AllPolicy()
		}
		return NonePolicy()
	case []string:
		return AllowlistPolicy(v...)
	case []any:
		names := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				names = append(names, s)
			}
		}
		return AllowlistPolicy(names...)
	default:
		return NonePolicy()
	}
}

// Kind returns the active policy kind. The zero Policy is PolicyNone.
func (p Policy) Kind() PolicyKind {
	if p.kind == "" {
		return PolicyNone
	}
	return p.kind
}

// Servers returns the allow-listed server names, sorted.
func (p Policy) Servers() []string {
	return slices.Clone(p.servers)
}

// Allows reports whether tools from server are visible under p.
func (p Policy) Allows(server string) bool {
	switch p.Kind() {
	case PolicyAll:
		return true
	case PolicyAllowlist:
		_, found := slices.BinarySearch(p.servers, server)
		return found
	default:
		return false
	}
}

// String renders the policy for logs and traces.
func (p Policy) String() string {
	if p.Kind() == PolicyAllowlist {
		return string(PolicyAllowlist) + "(" + strings.Join(p.servers, ",") + ")"
	}
	return string(p.Kind())
}
