package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Descriptor defaults applied when a card omits the field.
const (
	DefaultSchemaVersion = "1.0"
	DefaultVersion       = "0.0.1"
)

// Descriptor is the identity and capability metadata of one agent.
// It is immutable once parsed.
type Descriptor struct {
	SchemaVersion string         `json:"schema_version"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Version       string         `json:"version"`
	Capabilities  []string       `json:"capabilities"`
	Metadata      map[string]any `json:"metadata"`

	// Source is the catalog key the descriptor was read from.
	Source string `json:"source,omitempty"`
}

// rawDescriptor mirrors the on-disk card.
type rawDescriptor struct {
	SchemaVersion string            `json:"schema_version"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Version       string            `json:"version"`
	Capabilities  []json.RawMessage `json:"capabilities"`
	Metadata      map[string]any    `json:"metadata"`
}

// ParseDescriptor decodes one agent card.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var raw rawDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("decode card: %w", err)
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return Descriptor{}, errors.New("name is required")
	}

	caps := make([]string, 0, len(raw.Capabilities))
	for i, c := range raw.Capabilities {
		tag, err := capabilityTag(c)
		if err != nil {
			return Descriptor{}, fmt.Errorf("capabilities[%d]: %w", i, err)
		}
		caps = append(caps, tag)
	}

	d := Descriptor{
		SchemaVersion: raw.SchemaVersion,
		Name:          name,
		Description:   raw.Description,
		Version:       raw.Version,
		Capabilities:  caps,
		Metadata:      raw.Metadata,
	}
	if d.SchemaVersion == "" {
		d.SchemaVersion = DefaultSchemaVersion
	}
	if d.Version == "" {
		d.Version = DefaultVersion
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	return d, nil
}

// capabilityTag accepts either a bare string or an object carrying a name.
func capabilityTag(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("empty capability")
		}
		return s, nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Name == "" {
		return "", errors.New("capability must be a string or an object with a name")
	}
	return obj.Name, nil
}

// Keywords returns the metadata.keywords hints used for routing prompts.
func (d Descriptor) Keywords() []string {
	return stringList(d.Metadata["keywords"])
}

// Kind returns metadata.kind, the behaviour variant used to build the agent.
func (d Descriptor) Kind() string {
	s, _ := d.Metadata["kind"].(string)
	return strings.TrimSpace(s)
}

// RoleText returns metadata.init_system, the agent's role instructions.
func (d Descriptor) RoleText() string {
	s, _ := d.Metadata["init_system"].(string)
	return strings.TrimSpace(s)
}

// Tools returns the raw metadata.tools value.
func (d Descriptor) Tools() any {
	return d.Metadata["tools"]
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
