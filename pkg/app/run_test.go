package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GreenD93/mcp-project/internal/core"
	"github.com/GreenD93/mcp-project/internal/logging"
	"github.com/GreenD93/mcp-project/internal/reload"

	_ "github.com/GreenD93/mcp-project/internal/gateway"
	_ "github.com/GreenD93/mcp-project/modules/provider/openai"
	_ "github.com/GreenD93/mcp-project/modules/tracestore/sqlite"
)

// writeFixture lays out a config, one agent card and one tool manifest in a
// temporary directory and returns the config path.
func writeFixture(t *testing.T, modules string) string {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, body string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("agents/news_agent/card.json", `{"name": "news_agent", "description": "news", "metadata": {"tools": ["news"]}}`)
	write("tools/news/manifest.json", `{"server": "news", "tools": [{"name": "get_news", "description": "news"}]}`)
	write("tools/mcp_servers.json", `{"news": "http://127.0.0.1:1"}`)
	write("a2a.yaml", `version: "1"
catalog:
  agents_dir: agents
  tools_dir: tools
  servers_file: tools/mcp_servers.json
  refresh: "@every 1h"
log:
  level: error
modules:
`+modules)
	return filepath.Join(dir, "a2a.yaml")
}

const providerModule = `  provider.openai:
    api_key: sk-test-0123456789abcdefghij
    base_url: http://127.0.0.1:1
`

func TestBuild(t *testing.T) {
	cfgPath := writeFixture(t, providerModule+`  trace.sqlite:
    retention: 24h
`)

	rt, err := Build(context.Background(), Params{ConfigPath: cfgPath, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	r := rt.Dispatcher.Roster()
	if r == nil {
		t.Fatal("expected the roster to be loaded by Build")
	}
	if r.Catalog.Len() != 1 {
		t.Fatalf("expected 1 agent, got %d", r.Catalog.Len())
	}
	if _, ok := rt.App.Module("dispatch"); !ok {
		t.Fatal("expected the dispatch lifecycle module")
	}
	if svc, ok := rt.App.Context().GetService(serviceDispatcher); !ok || svc != rt.Dispatcher {
		t.Fatal("expected the dispatcher service to be registered")
	}

	if err := wireBackground(rt); err != nil {
		t.Fatalf("wireBackground: %v", err)
	}
	if _, ok := rt.App.Module("cron"); !ok {
		t.Fatal("expected the cron module for refresh and prune jobs")
	}
	if _, ok := rt.App.Module("reload"); !ok {
		t.Fatal("expected the reload module")
	}
}

func TestBuild_RequiresProvider(t *testing.T) {
	cfgPath := writeFixture(t, `  trace.sqlite: {}
`)

	_, err := Build(context.Background(), Params{ConfigPath: cfgPath, DataDir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "provider") {
		t.Fatalf("expected missing provider error, got %v", err)
	}
	if !strings.Contains(err.Error(), "compiled: provider.openai") {
		t.Errorf("expected the compiled providers to be listed, got %v", err)
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a2a.yaml")
	if err := os.WriteFile(path, []byte("version: \"2\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Build(context.Background(), Params{ConfigPath: path}); err == nil {
		t.Fatal("expected validation error")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	addr := freeAddr(t)
	cfgPath := writeFixture(t, providerModule+fmt.Sprintf(`  gateway.http:
    bind: %q
`, addr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Params{ConfigPath: cfgPath, DataDir: t.TempDir()})
	}()

	deadline := time.Now().Add(5 * time.Second)
	var health struct {
		Status string `json:"status"`
		Agents int    `json:"agents"`
	}
	for {
		req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+addr+"/health", nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			decodeErr := json.NewDecoder(resp.Body).Decode(&health)
			_ = resp.Body.Close()
			if decodeErr == nil && resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("gateway did not become healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if health.Agents != 1 {
		t.Fatalf("expected 1 agent, got %d", health.Agents)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_BindInUseReturnsError(t *testing.T) {
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	cfgPath := writeFixture(t, providerModule+fmt.Sprintf(`  gateway.http:
    bind: %q
  trace.sqlite:
    retention: 24h
`, ln.Addr().String()))

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- Run(context.Background(), Params{ConfigPath: cfgPath, DataDir: t.TempDir()})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for an occupied bind address")
		}
		if strings.HasPrefix(err.Error(), "panic:") {
			t.Fatalf("Run must fail cleanly, got %v", err)
		}
		if !strings.Contains(err.Error(), "gateway.http") {
			t.Errorf("expected the failing module in the error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRuntime_CloseWithoutRun(t *testing.T) {
	cfgPath := writeFixture(t, providerModule)

	rt, err := Build(context.Background(), Params{ConfigPath: cfgPath, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := wireBackground(rt); err != nil {
		t.Fatalf("wireBackground: %v", err)
	}
	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReloadModule_StopWithoutStart(t *testing.T) {
	t.Parallel()

	m := &reloadModule{handler: reload.NewHandler(refreshFunc(func() error { return nil }), logging.Discard())}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestAddSecrets(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	src := `
api_key: sk-live-secret
nested:
  auth:
    bearer_token: gateway-secret
  list:
    - basic_pass: hunter2
model: gpt-4o-mini
`
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatal(err)
	}

	r := logging.NewRedactor()
	addSecrets(r, &node)

	out := r.Redact("key=sk-live-secret token=gateway-secret pass=hunter2 model=gpt-4o-mini")
	for _, secret := range []string{"sk-live-secret", "gateway-secret", "hunter2"} {
		if strings.Contains(out, secret) {
			t.Errorf("expected %q to be redacted: %s", secret, out)
		}
	}
	if !strings.Contains(out, "gpt-4o-mini") {
		t.Errorf("expected non-secret value kept: %s", out)
	}
}

func TestReloadModule_StartStop(t *testing.T) {
	t.Parallel()

	m := &reloadModule{handler: reload.NewHandler(refreshFunc(func() error { return nil }), logging.Discard())}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

type refreshFunc func() error

func (f refreshFunc) Refresh() error { return f() }

var (
	_ core.Starter = (*reloadModule)(nil)
	_ core.Stopper = (*dispatcherModule)(nil)
)
