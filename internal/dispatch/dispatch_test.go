package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/provider/providertest"
	"github.com/GreenD93/mcp-project/internal/stream"
	"github.com/GreenD93/mcp-project/internal/tool"
	"github.com/GreenD93/mcp-project/internal/tool/tooltest"
	"github.com/GreenD93/mcp-project/internal/trace"
)

type recordingSink struct {
	mu     sync.Mutex
	traces []*trace.Trace
	err    error
}

func (s *recordingSink) Record(_ context.Context, tr *trace.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, tr)
	return s.err
}

var testAgents = catalog.StaticSource{
	"news_agent": []byte(`{"name": "news_agent", "description": "company news", "metadata": {"tools": ["news"], "keywords": ["news"]}}`),
	"transfer_agent": []byte(`{"name": "transfer_agent", "description": "money transfer",
		"metadata": {"tools": ["transfer"], "kind": "action"}}`),
}

func newDispatcher(t *testing.T, agents catalog.Source, routes map[string]http.HandlerFunc, sink *recordingSink, replies ...string) (*dispatch.Dispatcher, *tooltest.Server) {
	t.Helper()

	srv := tooltest.NewServer(t, routes)
	mock := &providertest.MockProvider{
		CompleteFunc: providertest.Replies(replies...),
		StreamFunc:   providertest.Chunks("hel", "lo"),
	}
	cfg := dispatch.Config{
		Agents: agents,
		Tools: tool.StaticSource{
			Manifests: []tool.Manifest{tooltest.NewsManifest(), tooltest.TransferManifest()},
			Servers:   tool.ServerMap{"news": srv.URL, "transfer": srv.URL},
		},
		Oracle: oracle.NewClient(mock, nil, nil),
	}
	if sink != nil {
		cfg.Sink = sink
	}
	d := dispatch.New(cfg)
	if err := d.Refresh(); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	return d, srv
}

func TestRun_RoutesToToolAgent(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	d, srv := newDispatcher(t, testAgents,
		map[string]http.HandlerFunc{"/tool/get_news": tooltest.JSON(map[string]any{"items": []string{"Acme ships"}})},
		sink,
		`{"route":"AGENT","agent_name":"news_agent","reason":"news"}`,
		`{"route":"TOOL","mcp":"news","tool_name":"get_news","arguments":{"company":"Acme"}}`,
	)

	resp, err := d.Run(context.Background(), "Acme news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Agent != "news_agent" {
		t.Fatalf("expected news_agent, got %q", resp.Agent)
	}
	if resp.Status != trace.StatusOK || resp.Plan.Mode != trace.ModeMCP {
		t.Fatalf("expected ok mcp plan, got %q %+v", resp.Status, resp.Plan)
	}
	if !resp.Trace.Ended() {
		t.Fatal("expected trace to be finished when Run returns")
	}
	answer, err := stream.Collect(resp.Answer)
	if err != nil || answer != "hello" {
		t.Fatalf("expected answer hello, got %q (%v)", answer, err)
	}
	if len(srv.Calls()) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(srv.Calls()))
	}
	if len(sink.traces) != 1 || sink.traces[0] != resp.Trace {
		t.Fatalf("expected the trace to be recorded once, got %d", len(sink.traces))
	}
}

func TestRun_UnknownAgentUsesFallback(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, testAgents, nil, nil,
		`{"route":"AGENT","agent_name":"weather_agent"}`,
	)

	resp, err := d.Run(context.Background(), "weather?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Agent != dispatch.DefaultFallbackAgent {
		t.Fatalf("expected fallback agent, got %q", resp.Agent)
	}
	if _, ok := resp.Trace.Find(trace.EventFallbackSelected); !ok {
		t.Fatal("expected fallback.selected event")
	}
	if resp.Plan.Mode != trace.ModeDirect {
		t.Fatalf("expected direct plan, got %+v", resp.Plan)
	}
	if answer, _ := stream.Collect(resp.Answer); answer != "hello" {
		t.Fatalf("expected generated answer, got %q", answer)
	}
}

func TestRun_OracleFailureStillAnswers(t *testing.T) {
	t.Parallel()

	// No scripted replies: routing fails, the fallback chat agent generates.
	d, _ := newDispatcher(t, testAgents, nil, nil)

	resp, err := d.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Selection.Decision.Error != oracle.ErrorOracle {
		t.Fatalf("expected oracle_error decision, got %+v", resp.Selection.Decision)
	}
	if _, ok := resp.Trace.Find(trace.EventRouteError); !ok {
		t.Fatal("expected route.error event")
	}
	last := resp.Trace.Events[len(resp.Trace.Events)-1]
	if last.Name != trace.EventRunEnd {
		t.Fatalf("expected run.end last, got %q", last.Name)
	}
}

func TestRun_ActionAgentDoesNotInvoke(t *testing.T) {
	t.Parallel()

	d, srv := newDispatcher(t, testAgents, nil, nil,
		`{"route":"AGENT","agent_name":"transfer_agent"}`,
		`{"route":"TOOL","mcp":"transfer","tool_name":"transfer","arguments":{"recipient":"kim","amount":1000}}`,
	)

	resp, err := d.Run(context.Background(), "send kim 1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action == nil || resp.Action.Tool != "transfer" {
		t.Fatalf("expected transfer action, got %+v", resp.Action)
	}
	if len(srv.Calls()) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(srv.Calls()))
	}
}

func TestRun_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, testAgents, nil, nil)
	if _, err := d.Run(context.Background(), "   "); !errors.Is(err, dispatch.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestRun_NotReadyBeforeRefresh(t *testing.T) {
	t.Parallel()

	d := dispatch.New(dispatch.Config{Agents: testAgents})
	if _, err := d.Run(context.Background(), "hi"); !errors.Is(err, dispatch.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestRun_SinkFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{err: errors.New("disk full")}
	d, _ := newDispatcher(t, testAgents, nil, sink, `{"route":"DIRECT"}`)
	if _, err := d.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("expected sink failure to be swallowed, got %v", err)
	}
}

func TestRefresh_KeepsRosterOnSourceFailure(t *testing.T) {
	t.Parallel()

	src := &switchSource{data: testAgents}
	d, _ := newDispatcher(t, src, nil, nil)
	before := d.Roster()

	src.set(nil)
	if err := d.Refresh(); err == nil {
		t.Fatal("expected refresh error")
	}
	if d.Roster() != before {
		t.Fatal("expected previous roster to stay in place")
	}

	src.set(catalog.StaticSource{"news_agent": testAgents["news_agent"]})
	if err := d.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(d.Agents()); got != 1 {
		t.Fatalf("expected 1 agent after refresh, got %d", got)
	}
}

func TestRefresh_SkipsUnbuildableAgents(t *testing.T) {
	t.Parallel()

	agents := catalog.StaticSource{
		"news_agent": testAgents["news_agent"],
		"odd_agent":  []byte(`{"name": "odd_agent", "metadata": {"kind": "robot"}}`),
	}
	d, _ := newDispatcher(t, agents, nil, nil)

	r := d.Roster()
	if len(r.Problems) != 1 {
		t.Fatalf("expected 1 problem, got %v", r.Problems)
	}
	if _, ok := r.Agent("odd_agent"); ok {
		t.Fatal("expected odd_agent to be skipped")
	}
	if r.Fallback().Name() != dispatch.DefaultFallbackAgent {
		t.Fatalf("expected synthesized fallback, got %q", r.Fallback().Name())
	}
}

func TestAgents_Listing(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, testAgents, nil, nil)
	infos := d.Agents()
	if len(infos) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(infos))
	}
	news := infos[0]
	if news.Name != "news_agent" || news.Kind != "tool" || news.ToolCount != 1 {
		t.Fatalf("unexpected news agent info: %+v", news)
	}
	if infos[1].Kind != "action" {
		t.Fatalf("expected action kind, got %q", infos[1].Kind)
	}
}

func TestInvokeTool(t *testing.T) {
	t.Parallel()

	d, srv := newDispatcher(t, testAgents,
		map[string]http.HandlerFunc{"/tool/get_news": tooltest.JSON(map[string]any{"items": []string{"x"}})},
		nil,
	)
	ctx := context.Background()

	out, err := d.InvokeTool(ctx, "news_agent", "news", "get_news", map[string]any{"company": "Acme"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(out.Data, &body); err != nil {
		t.Fatalf("expected JSON data, got %s", out.Data)
	}

	streamed, err := d.InvokeTool(ctx, "news_agent", "news", "get_news", map[string]any{"company": "Acme"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := stream.Collect(streamed.Stream)
	if err != nil || !strings.Contains(text, `"items"`) {
		t.Fatalf("unexpected streamed text %q (%v)", text, err)
	}

	_, err = d.InvokeTool(ctx, "news_agent", "news", "get_news", map[string]any{}, false)
	var ve *dispatch.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if _, err := d.InvokeTool(ctx, "news_agent", "transfer", "transfer", nil, false); !errors.Is(err, tool.ErrUnregisteredTool) {
		t.Fatalf("expected ErrUnregisteredTool outside policy, got %v", err)
	}
	if _, err := d.InvokeTool(ctx, "nobody", "news", "get_news", nil, false); !errors.Is(err, catalog.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
	if len(srv.Calls()) != 2 {
		t.Fatalf("expected 2 calls to reach the server, got %d", len(srv.Calls()))
	}
}

// switchSource lets a test swap catalog contents between refreshes. A nil
// map simulates an unreadable source.
type switchSource struct {
	mu   sync.Mutex
	data catalog.StaticSource
}

func (s *switchSource) set(data catalog.StaticSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

func (s *switchSource) Entries() ([]catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, errors.New("catalog unavailable")
	}
	return s.data.Entries()
}
