package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetrics_ObserveRun(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveRun("news_agent", "ok")
	m.ObserveRun("news_agent", "ok")
	m.ObserveRun("news_agent", "failed:mcp_call")

	body := scrape(t, m)
	for _, want := range []string{
		`a2a_runs_total{agent="news_agent",status="ok"} 2`,
		`a2a_runs_total{agent="news_agent",status="failed:mcp_call"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveToolCall("news", "get_news", errors.New("boom"), 20*time.Millisecond)
	m.ObserveOracle("decide", nil)
	m.ObserveRefresh(3, nil)

	body := scrape(t, m)
	for _, want := range []string{
		`a2a_tool_call_duration_seconds_count{outcome="error",server="news",tool="get_news"} 1`,
		`a2a_oracle_calls_total{kind="decide",outcome="ok"} 1`,
		`a2a_agents_loaded 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveRun("a", "ok")
	m.ObserveToolCall("s", "t", nil, time.Second)
	m.ObserveOracle("decide", nil)
	m.ObserveRefresh(1, nil)
}

func TestSetup(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Tracing: TracingNone})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
	if _, err := Setup(context.Background(), Config{Tracing: "jaeger"}); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}
