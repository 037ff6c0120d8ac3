package gateway

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/oracle"
	"github.com/GreenD93/mcp-project/internal/provider/providertest"
	"github.com/GreenD93/mcp-project/internal/telemetry"
	"github.com/GreenD93/mcp-project/internal/tool"
	"github.com/GreenD93/mcp-project/internal/tool/tooltest"
)

var testAgents = catalog.StaticSource{
	"news_agent": []byte(`{"name": "news_agent", "description": "company news", "metadata": {"tools": ["news"]}}`),
}

// newTestDispatcher wires a dispatcher over a fake news server. replies are
// the oracle's decisions in order; generation streams "hel" + "lo". The
// roster is loaded unless loaded is false.
func newTestDispatcher(t *testing.T, loaded bool, replies ...string) (*dispatch.Dispatcher, *tooltest.Server) {
	t.Helper()

	srv := tooltest.NewServer(t, map[string]http.HandlerFunc{
		"/tool/get_news": tooltest.JSON(map[string]any{"items": []string{"Acme ships"}}),
	})
	mock := &providertest.MockProvider{
		CompleteFunc: providertest.Replies(replies...),
		StreamFunc:   providertest.Chunks("hel", "lo"),
	}
	d := dispatch.New(dispatch.Config{
		Agents: testAgents,
		Tools: tool.StaticSource{
			Manifests: []tool.Manifest{tooltest.NewsManifest()},
			Servers:   tool.ServerMap{"news": srv.URL},
		},
		Oracle: oracle.NewClient(mock, nil, nil),
		Logger: discardLogger(),
	})
	if loaded {
		if err := d.Refresh(); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	return d, srv
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// newHandlerGateway returns a gateway whose router is served by an
// httptest server, without binding a real listener.
func newHandlerGateway(t *testing.T, d Dispatcher, cfg Config) (*Gateway, *httptest.Server) {
	t.Helper()
	cfg.defaults()
	g := &Gateway{
		config:     cfg,
		logger:     discardLogger(),
		dispatcher: d,
		metrics:    telemetry.NewMetrics(),
	}
	if cfg.RateLimit.RequestsPerMin > 0 {
		g.limiter = newRateLimiter(cfg.RateLimit)
	}
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return g, srv
}
