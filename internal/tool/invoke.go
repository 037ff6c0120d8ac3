package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/GreenD93/mcp-project/internal/stream"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// BreakerConfig configures the optional per-server circuit breaker. The
// breaker only fails fast while a server is unhealthy; it never retries.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32 `yaml:"max_failures"`
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

func (c *BreakerConfig) defaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
}

// InvokerConfig configures an Invoker.
type InvokerConfig struct {
	// Timeout bounds a synchronous call. Zero means no timeout; tools run as
	// long as they need and callers cancel through the context.
	Timeout time.Duration `yaml:"timeout"`
	Breaker BreakerConfig `yaml:"breaker"`

	HTTPClient *http.Client `yaml:"-"`
	Logger     *slog.Logger `yaml:"-"`
}

// Invoker calls tool servers over HTTP, or over MCP for mcp+http(s) base URLs.
// It is safe for concurrent use.
type Invoker struct {
	client *http.Client
	logger *slog.Logger
	cfg    InvokerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	sessions *mcpSessions
}

// NewInvoker creates an Invoker.
func NewInvoker(cfg InvokerConfig) *Invoker {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Breaker.Enabled {
		cfg.Breaker.defaults()
	}
	return &Invoker{
		client:   client,
		logger:   logger.With("component", "invoker"),
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		sessions: newMCPSessions(logger),
	}
}

// Invoke calls (server, name) and returns the decoded JSON response.
// Registry and server-map misses fail before any network call.
func (iv *Invoker) Invoke(ctx context.Context, reg *Registry, server, name string, args map[string]any) (json.RawMessage, error) {
	entry, base, err := reg.Resolve(server, name)
	if err != nil {
		return nil, err
	}
	if iv.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iv.cfg.Timeout)
		defer cancel()
	}

	if isMCPURL(base) {
		text, err := iv.guard(server, func() (any, error) {
			return iv.sessions.call(ctx, mcpEndpoint(base), entry, args)
		})
		if err != nil {
			return nil, iv.upstream(entry, err)
		}
		out, _ := json.Marshal(map[string]string{"content": text.(string)})
		return out, nil
	}

	resp, err := iv.do(ctx, entry, base, args)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Server: server, Tool: name, Err: fmt.Errorf("reading response: %w", err)}
	}
	if !json.Valid(body) {
		return nil, &UpstreamError{Server: server, Tool: name, Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// Stream calls (server, name) and exposes the response body as text
// fragments. The connection is released when the sequence is exhausted or
// the consumer stops ranging.
func (iv *Invoker) Stream(ctx context.Context, reg *Registry, server, name string, args map[string]any) (stream.Text, error) {
	entry, base, err := reg.Resolve(server, name)
	if err != nil {
		return nil, err
	}

	if isMCPURL(base) {
		text, err := iv.guard(server, func() (any, error) {
			return iv.sessions.call(ctx, mcpEndpoint(base), entry, args)
		})
		if err != nil {
			return nil, iv.upstream(entry, err)
		}
		return stream.Static(text.(string)), nil
	}

	resp, err := iv.do(ctx, entry, base, args)
	if err != nil {
		return nil, err
	}
	return stream.FromReader(resp.Body), nil
}

// Close releases MCP sessions held by the invoker.
func (iv *Invoker) Close() error {
	return iv.sessions.close()
}

// do sends the request and returns a 2xx response with an open body.
func (iv *Invoker) do(ctx context.Context, entry Entry, base string, args map[string]any) (*http.Response, error) {
	req, err := buildRequest(ctx, entry, base, args)
	if err != nil {
		return nil, &UpstreamError{Server: entry.Server, Tool: entry.Name, Err: err}
	}

	iv.logger.Debug("invoking tool", "server", entry.Server, "tool", entry.Name, "method", entry.Method, "url", req.URL.String())

	res, err := iv.guard(entry.Server, func() (any, error) {
		resp, err := iv.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, &UpstreamError{
				Server: entry.Server,
				Tool:   entry.Name,
				Status: resp.StatusCode,
				Body:   strings.TrimSpace(string(body)),
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, iv.upstream(entry, err)
	}
	return res.(*http.Response), nil
}

// upstream normalizes any call failure into an *UpstreamError.
func (iv *Invoker) upstream(entry Entry, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return &UpstreamError{Server: entry.Server, Tool: entry.Name, Err: err}
}

// guard runs fn through the server's breaker when breakers are enabled.
func (iv *Invoker) guard(server string, fn func() (any, error)) (any, error) {
	if !iv.cfg.Breaker.Enabled {
		return fn()
	}
	return iv.breaker(server).Execute(fn)
}

func (iv *Invoker) breaker(server string) *gobreaker.CircuitBreaker[any] {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	if cb, ok := iv.breakers[server]; ok {
		return cb
	}
	maxFailures := iv.cfg.Breaker.MaxFailures
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    server,
		Timeout: iv.cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// Client errors say nothing about server health.
			var ue *UpstreamError
			if errors.As(err, &ue) && ue.Status >= 400 && ue.Status < 500 {
				return true
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			iv.logger.Warn("tool server breaker state changed",
				"server", name, "from", from.String(), "to", to.String())
		},
	})
	iv.breakers[server] = cb
	return cb
}

func buildRequest(ctx context.Context, entry Entry, base string, args map[string]any) (*http.Request, error) {
	target := strings.TrimRight(base, "/") + entry.Path

	if entry.Method == http.MethodGet {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parsing tool URL: %w", err)
		}
		q := u.Query()
		for _, k := range slices.Sorted(maps.Keys(args)) {
			for _, v := range queryValues(args[k]) {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		return req, nil
	}

	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, entry.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// queryValues renders one argument as query values. Lists repeat the key;
// objects are sent as JSON text.
func queryValues(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			out = append(out, queryValues(it)...)
		}
		return out
	case []string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return []string{fmt.Sprint(x)}
		}
		return []string{string(b)}
	}
}
