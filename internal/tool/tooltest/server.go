// Package tooltest provides a fake tool server and registry helpers for tests.
package tooltest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/GreenD93/mcp-project/internal/tool"
)

// Call records one request received by a Server.
type Call struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   map[string]any
}

// Server is a fake tool provider that records calls and answers with the
// configured handlers.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	calls []Call
}

// NewServer starts a fake tool server. Each key of routes is a request path;
// unknown paths answer 404. The server is closed on test cleanup.
func NewServer(t testing.TB, routes map[string]http.HandlerFunc) *Server {
	t.Helper()

	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &c.Body)
		}
		s.mu.Lock()
		s.calls = append(s.calls, c)
		s.mu.Unlock()

		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// JSON answers every request with v encoded as JSON.
func JSON(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Status answers every request with code and body.
func Status(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}
}

// NewsManifest returns the manifest of a news server whose get_news tool
// requires a string "company".
func NewsManifest() tool.Manifest {
	return tool.Manifest{
		Server: "news",
		Tools: []tool.ManifestTool{{
			Name:        "get_news",
			Description: "Fetch recent news for a company",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"company": {"type": "string"}},
				"required": ["company"]
			}`),
		}},
	}
}

// TransferManifest returns the manifest of a transfer server.
func TransferManifest() tool.Manifest {
	return tool.Manifest{
		Server: "transfer",
		Tools: []tool.ManifestTool{
			{
				Name:        "transfer",
				Description: "Send money to a recipient",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"recipient": {"type": "string"},
						"amount": {"type": "integer"},
						"transfer_desc": {"type": "string"}
					},
					"required": ["recipient", "amount"]
				}`),
			},
			{Name: "deposit_product", Description: "List deposit products", Method: "get"},
		},
	}
}
