package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GreenD93/mcp-project/internal/config"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/stream"
	"github.com/GreenD93/mcp-project/internal/trace"
	"github.com/GreenD93/mcp-project/pkg/app"
)

func appParams(configPath string) app.Params {
	return app.Params{ConfigPath: configPath}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "a2a dev") {
		t.Errorf("unexpected output: %q", out)
	}
	for _, id := range []string{"gateway.http", "provider.openai", "trace.sqlite"} {
		if !strings.Contains(out, id) {
			t.Errorf("expected compiled module %s in %q", id, out)
		}
	}
}

func TestRenderConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	text, err := renderConfig(defaultAnswers())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(text, "api_key: ${OPENAI_API_KEY}") {
		t.Errorf("expected env reference for the API key:\n%s", text)
	}

	cfg, err := config.Parse([]byte(text))
	if err != nil {
		t.Fatalf("generated config does not parse: %v\n%s", err, text)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("generated config is invalid: %v\n%s", err, text)
	}
	ids := config.Resolve(cfg)
	want := []string{"gateway.http", "provider.openai", "trace.sqlite"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("modules = %v, want %v", ids, want)
	}
}

func TestRenderConfig_Minimal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	a := defaultAnswers()
	a.Gateway = false
	a.Archive = false
	text, err := renderConfig(a)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Parse([]byte(text))
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, text)
	}
	if ids := config.Resolve(cfg); len(ids) != 1 || ids[0] != "provider.openai" {
		t.Errorf("expected only the provider module, got %v", ids)
	}
}

func TestInitCmd_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a2a.yaml")

	if _, err := execute(t, "init", "--yes", "--output", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to be written: %v", err)
	}
	if _, err := execute(t, "init", "--yes", "--output", path); err == nil {
		t.Fatal("expected error when the file exists")
	}
	if _, err := execute(t, "init", "--yes", "--force", "--output", path); err != nil {
		t.Fatalf("expected --force to overwrite: %v", err)
	}
}

func TestConfigCheckCmd(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	dir := t.TempDir()
	path := filepath.Join(dir, "a2a.yaml")
	a := defaultAnswers()
	a.Gateway = false
	a.Archive = false
	text, err := renderConfig(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "Configuration OK (1 modules)") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestWriteAnswer(t *testing.T) {
	tr := trace.New("hi")
	_ = tr.SetPlan(trace.Plan{Mode: trace.ModeDirect, Reason: "no_tools"})
	_ = tr.End(trace.StatusOK)
	resp := &dispatch.Response{
		Agent:  "basic_agent",
		Plan:   trace.Plan{Mode: trace.ModeDirect},
		Status: trace.StatusOK,
		Answer: stream.Static("hel", "lo"),
		Trace:  tr,
	}

	var out, meta bytes.Buffer
	if err := writeAnswer(&out, &meta, resp, true); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\n" {
		t.Errorf("answer = %q", out.String())
	}
	if !strings.Contains(meta.String(), "agent=basic_agent mode=direct status=ok") {
		t.Errorf("unexpected summary: %q", meta.String())
	}
	if !strings.Contains(meta.String(), `"requested_input": "hi"`) {
		t.Errorf("expected trace JSON: %q", meta.String())
	}
}

func TestWriteAgents(t *testing.T) {
	var out bytes.Buffer
	err := writeAgents(&out, []dispatch.AgentInfo{
		{Name: "news_agent", Kind: "tool", Version: "0.0.1", ToolCount: 2, Description: "company news"},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "news_agent") {
		t.Errorf("unexpected table:\n%s", out.String())
	}
}

func TestServiceConfig(t *testing.T) {
	cfg, err := serviceConfig(appParams("conf/a2a.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "a2a" || cfg.Arguments[0] != "start" {
		t.Fatalf("unexpected service config: %+v", cfg)
	}
	if len(cfg.Arguments) != 3 || !filepath.IsAbs(cfg.Arguments[2]) {
		t.Errorf("expected an absolute --config argument, got %v", cfg.Arguments)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate kept = %q", got)
	}
	if got := truncate("송금해줘 친구에게 만원", 5); got != "송금해줘…" {
		t.Errorf("truncate = %q", got)
	}
}
