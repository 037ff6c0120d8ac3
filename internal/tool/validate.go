package tool

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validation warnings.
const (
	WarnNoSchema = "no_schema"
	WarnFallback = "fallback_validator"
)

// ValidationMode selects the argument validator.
type ValidationMode string

// Validation modes.
const (
	ValidationStrict   ValidationMode = "strict"
	ValidationFallback ValidationMode = "fallback"
)

// ValidationResult is the outcome of validating one argument object.
type ValidationResult struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validator checks tool arguments against the tool's declared parameter
// schema. Results depend only on (schema, arguments); compiled schemas are
// cached by content.
type Validator struct {
	mode   ValidationMode
	logger *slog.Logger

	mu       sync.Mutex
	compiled map[string]compiledSchema
}

type compiledSchema struct {
	schema *jsonschema.Schema
	err    error
}

// NewValidator returns a validator in the given mode. An empty mode is strict.
func NewValidator(mode ValidationMode, logger *slog.Logger) *Validator {
	if mode == "" {
		mode = ValidationStrict
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		mode:     mode,
		logger:   logger.With("component", "validator"),
		compiled: make(map[string]compiledSchema),
	}
}

// Mode returns the configured validation mode.
func (v *Validator) Mode() ValidationMode { return v.mode }

// ValidateTool resolves (server, name) in reg and validates args against
// its schema.
func (v *Validator) ValidateTool(reg *Registry, server, name string, args map[string]any) ValidationResult {
	e, ok := reg.Lookup(server, name)
	if !ok {
		return ValidationResult{
			Errors:   []string{fmt.Sprintf("%v: %s/%s", ErrUnregisteredTool, server, name)},
			Warnings: []string{},
		}
	}
	return v.Validate(e.Parameters, args)
}

// Validate checks args against schema.
func (v *Validator) Validate(schema json.RawMessage, args map[string]any) ValidationResult {
	if isEmptySchema(schema) {
		return ValidationResult{OK: true, Errors: []string{}, Warnings: []string{WarnNoSchema}}
	}

	instance, err := normalize(args)
	if err != nil {
		return ValidationResult{
			Errors:   []string{fmt.Sprintf("(root): arguments are not JSON-encodable: %v", err)},
			Warnings: []string{},
		}
	}

	if v.mode == ValidationStrict {
		compiled := v.compile(schema)
		if compiled.err == nil {
			return strictValidate(compiled.schema, instance)
		}
		v.logger.Warn("schema did not compile, using fallback validator", "error", compiled.err)
	}
	return fallbackValidate(schema, instance)
}

func (v *Validator) compile(schema json.RawMessage) compiledSchema {
	key := string(schema)

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.compiled[key]; ok {
		return c
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	var c compiledSchema
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		c.err = fmt.Errorf("add schema resource: %w", err)
	} else {
		c.schema, c.err = compiler.Compile("schema.json")
	}
	v.compiled[key] = c
	return c
}

func isEmptySchema(schema json.RawMessage) bool {
	s := strings.TrimSpace(string(schema))
	return s == "" || s == "null" || s == "{}"
}

// normalize round-trips args through JSON so both validators see plain JSON
// values, with numbers kept as json.Number.
func normalize(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

type violation struct {
	path string
	msg  string
}

var quotedName = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)

func strictValidate(schema *jsonschema.Schema, instance map[string]any) ValidationResult {
	res := ValidationResult{OK: true, Errors: []string{}, Warnings: []string{}}

	err := schema.Validate(instance)
	if err == nil {
		return res
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		res.OK = false
		res.Errors = append(res.Errors, "(root): "+err.Error())
		return res
	}

	var leaves []violation
	collectLeaves(ve, &leaves)
	slices.SortStableFunc(leaves, func(a, b violation) int {
		if c := cmp.Compare(a.path, b.path); c != 0 {
			return c
		}
		return cmp.Compare(a.msg, b.msg)
	})

	res.OK = false
	for _, l := range leaves {
		res.Errors = append(res.Errors, l.msg)
	}
	return res
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]violation) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectLeaves(c, out)
		}
		return
	}

	path := dottedPath(ve.InstanceLocation)
	if strings.HasSuffix(ve.KeywordLocation, "/required") {
		if names := quotedName.FindAllStringSubmatch(ve.Message, -1); len(names) > 0 {
			for _, n := range names {
				prop := n[1]
				if path != "" {
					prop = path + "." + prop
				}
				*out = append(*out, violation{path: prop, msg: missingProperty(prop)})
			}
			return
		}
	}

	loc := path
	if loc == "" {
		loc = "(root)"
	}
	*out = append(*out, violation{path: path, msg: loc + ": " + ve.Message})
}

// dottedPath converts a JSON pointer into a dotted property path.
func dottedPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	parts := strings.Split(pointer, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func missingProperty(name string) string {
	return fmt.Sprintf("missing required property: '%s'", name)
}

// fallbackSchema is the subset of JSON Schema the fallback validator reads.
type fallbackSchema struct {
	Required   []string                   `json:"required"`
	Properties map[string]json.RawMessage `json:"properties"`
}

func fallbackValidate(schema json.RawMessage, instance map[string]any) ValidationResult {
	res := ValidationResult{OK: true, Errors: []string{}, Warnings: []string{WarnFallback}}

	var s fallbackSchema
	if err := json.Unmarshal(schema, &s); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("schema unreadable: %v", err))
		return res
	}

	for _, name := range s.Required {
		if _, ok := instance[name]; !ok {
			res.OK = false
			res.Errors = append(res.Errors, missingProperty(name))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(instance)) {
		raw, ok := s.Properties[name]
		if !ok {
			continue
		}
		want := declaredTypes(raw)
		if len(want) == 0 {
			continue
		}
		if slices.ContainsFunc(want, func(t string) bool { return typeMatches(t, instance[name]) }) {
			continue
		}
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("type mismatch at '%s': expected %s, got %s",
			name, strings.Join(want, "|"), jsonTypeName(instance[name])))
	}
	return res
}

// declaredTypes reads a property's "type" as a string or list of strings.
func declaredTypes(raw json.RawMessage) []string {
	var prop struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(raw, &prop); err != nil || len(prop.Type) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(prop.Type, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(prop.Type, &many); err == nil {
		return many
	}
	return nil
}

// typeMatches applies the primitive compatibility table. Unknown type
// names are accepted.
func typeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(json.Number)
		return ok
	case "integer":
		n, ok := v.(json.Number)
		return ok && isIntegral(n)
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "null":
		return v == nil
	default:
		return true
	}
}

// isIntegral reports whether n was written as an integer literal. 3.0 and
// 1e2 are numbers, not integers.
func isIntegral(n json.Number) bool {
	s := n.String()
	return s != "" && !strings.ContainsAny(s, ".eE")
}

func jsonTypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		if isIntegral(x) {
			return "integer"
		}
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
