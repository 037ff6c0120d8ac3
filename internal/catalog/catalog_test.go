package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestDiscover_SkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	src := StaticSource{
		"b_agent": []byte(`{"name": "news_agent", "description": "news"}`),
		"a_agent": []byte(`{"name": "mail_agent", "metadata": {"tools": ["mail_sender"]}}`),
		"c_bad":   []byte(`{"name": `),
		"d_empty": []byte(`{"description": "no name"}`),
	}

	cat, errs := Discover(src)
	if cat == nil {
		t.Fatal("expected catalog")
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 parse errors, got %d: %v", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrCatalogParse) {
			t.Errorf("expected ErrCatalogParse, got %v", err)
		}
	}

	var names []string
	for _, d := range cat.Descriptors() {
		names = append(names, d.Name)
	}
	want := []string{"mail_agent", "news_agent"}
	if !slices.Equal(names, want) {
		t.Errorf("expected %v (key order), got %v", want, names)
	}
}

func TestDiscover_Defaults(t *testing.T) {
	t.Parallel()

	cat, errs := Discover(StaticSource{"x": []byte(`{"name": "x"}`)})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	d, ok := cat.Lookup("x")
	if !ok {
		t.Fatal("expected x to be catalogued")
	}
	if d.SchemaVersion != DefaultSchemaVersion {
		t.Errorf("expected schema version %q, got %q", DefaultSchemaVersion, d.SchemaVersion)
	}
	if d.Version != DefaultVersion {
		t.Errorf("expected version %q, got %q", DefaultVersion, d.Version)
	}
	if d.Metadata == nil {
		t.Error("expected non-nil metadata")
	}
	if d.Source != "x" {
		t.Errorf("expected source key x, got %q", d.Source)
	}
}

func TestDiscover_DuplicateNameKeepsFirstKey(t *testing.T) {
	t.Parallel()

	cat, errs := Discover(StaticSource{
		"2": []byte(`{"name": "dup", "description": "second"}`),
		"1": []byte(`{"name": "dup", "description": "first"}`),
	})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	d, _ := cat.Lookup("dup")
	if d.Description != "first" {
		t.Errorf("expected first entry to win, got %q", d.Description)
	}
}

func TestDescriptor_Projections(t *testing.T) {
	t.Parallel()

	d, err := ParseDescriptor([]byte(`{
		"name": "susin_agent",
		"capabilities": ["transfer", {"name": "deposit"}],
		"metadata": {
			"keywords": ["송금", "transfer", 3],
			"kind": "action",
			"init_system": "  You move money.  ",
			"tools": "*"
		}
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(d.Capabilities, []string{"transfer", "deposit"}) {
		t.Errorf("unexpected capabilities: %v", d.Capabilities)
	}
	if !slices.Equal(d.Keywords(), []string{"송금", "transfer"}) {
		t.Errorf("unexpected keywords: %v", d.Keywords())
	}
	if d.Kind() != "action" {
		t.Errorf("expected kind action, got %q", d.Kind())
	}
	if d.RoleText() != "You move money." {
		t.Errorf("unexpected role text: %q", d.RoleText())
	}
	if d.Tools() != "*" {
		t.Errorf("expected tools wildcard, got %v", d.Tools())
	}
}

func TestParseDescriptor_BadCapability(t *testing.T) {
	t.Parallel()

	_, err := ParseDescriptor([]byte(`{"name": "x", "capabilities": [42]}`))
	if err == nil {
		t.Fatal("expected error for numeric capability")
	}
}

func TestDirSource(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write := func(dir, body string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
		if body == "" {
			return
		}
		if err := os.WriteFile(filepath.Join(root, dir, CardFile), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("news_agent", `{"name": "news_agent"}`)
	write("broken_agent", `not json`)
	write("__pycache__", "")

	cat, errs := Discover(DirSource{Root: root})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	var pe *ParseError
	if !errors.As(errs[0], &pe) || pe.Key != "broken_agent" {
		t.Errorf("expected ParseError for broken_agent, got %v", errs[0])
	}
	if cat.Len() != 1 {
		t.Errorf("expected 1 agent, got %d", cat.Len())
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	t.Parallel()

	cat, errs := Discover(DirSource{Root: filepath.Join(t.TempDir(), "missing")})
	if cat != nil {
		t.Error("expected nil catalog for missing root")
	}
	if len(errs) != 1 {
		t.Errorf("expected 1 error, got %v", errs)
	}
}

func TestCatalog_LookupUnknown(t *testing.T) {
	t.Parallel()

	cat := New(Descriptor{Name: "a"})
	if _, ok := cat.Lookup("b"); ok {
		t.Error("expected lookup miss")
	}
	var nilCat *Catalog
	if nilCat.Len() != 0 {
		t.Error("expected zero length for nil catalog")
	}
}
