package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const mcpScheme = "mcp+"

func isMCPURL(base string) bool {
	return strings.HasPrefix(base, mcpScheme+"http://") || strings.HasPrefix(base, mcpScheme+"https://")
}

// mcpEndpoint strips the mcp+ prefix, leaving the streamable HTTP endpoint.
func mcpEndpoint(base string) string {
	return strings.TrimPrefix(base, mcpScheme)
}

// mcpSessions keeps one initialized client per endpoint.
type mcpSessions struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*mcpclient.Client
}

func newMCPSessions(logger *slog.Logger) *mcpSessions {
	return &mcpSessions{
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*mcpclient.Client),
	}
}

func (s *mcpSessions) client(ctx context.Context, endpoint string) (*mcpclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[endpoint]; ok {
		return c, nil
	}

	t, err := transport.NewStreamableHTTP(endpoint)
	if err != nil {
		return nil, fmt.Errorf("mcp: create transport: %w", err)
	}
	c := mcpclient.NewClient(t)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "a2a",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp: initialize: %w", err)
	}

	s.logger.Info("mcp session opened", "endpoint", endpoint)
	s.clients[endpoint] = c
	return c, nil
}

// call runs tools/call and returns the joined text content.
func (s *mcpSessions) call(ctx context.Context, endpoint string, entry Entry, args map[string]any) (string, error) {
	c, err := s.client(ctx, endpoint)
	if err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = entry.Name
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		s.drop(endpoint, c)
		return "", fmt.Errorf("mcp: call %s: %w", entry.Name, err)
	}
	text := mcpText(res)
	if res.IsError {
		return "", &UpstreamError{Server: entry.Server, Tool: entry.Name, Err: errors.New(text)}
	}
	return text, nil
}

// drop forgets a session after a failed call so the next call reconnects.
func (s *mcpSessions) drop(endpoint string, c *mcpclient.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[endpoint] == c {
		delete(s.clients, endpoint)
		_ = c.Close()
	}
}

func (s *mcpSessions) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for endpoint, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp: close %s: %w", endpoint, err))
		}
		delete(s.clients, endpoint)
	}
	return errors.Join(errs...)
}

func mcpText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
