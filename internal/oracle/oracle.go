package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GreenD93/mcp-project/internal/provider"
	"github.com/GreenD93/mcp-project/internal/stream"
)

// Observer is notified once per oracle call. kind is "decide" or "generate".
type Observer func(kind string, err error)

// Client sends prompts to a provider. Decisions are requested in JSON mode at
// temperature zero; generations stream. A Client never retries.
type Client struct {
	provider provider.Provider
	logger   *slog.Logger
	observe  Observer
}

// NewClient creates a Client over p. observe may be nil.
func NewClient(p provider.Provider, logger *slog.Logger, observe Observer) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if observe == nil {
		observe = func(string, error) {}
	}
	return &Client{
		provider: p,
		logger:   logger.With("component", "oracle"),
		observe:  observe,
	}
}

// Model returns the provider's model name.
func (c *Client) Model() string { return c.provider.ModelName() }

// Decide sends prompt as a single user message and returns the raw reply.
func (c *Client) Decide(ctx context.Context, prompt string) (string, error) {
	zero := 0.0
	resp, err := c.provider.Complete(ctx, provider.CompletionRequest{
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: prompt}},
		Temperature: &zero,
		JSONMode:    true,
	})
	c.observe("decide", err)
	if err != nil {
		return "", fmt.Errorf("oracle: decide: %w", err)
	}
	c.logger.Debug("oracle decision", "model", c.provider.ModelName(), "tokens", resp.Usage.TotalTokens)
	return resp.Content, nil
}

// Generate starts a streamed generation. Connection failures are returned
// directly; failures after the first fragment end the sequence with an error.
// Stopping the range cancels the provider stream.
func (c *Client) Generate(ctx context.Context, p Prompt) (stream.Text, error) {
	ctx, cancel := context.WithCancel(ctx)
	chunks, err := c.provider.Stream(ctx, generationRequest(p))
	c.observe("generate", err)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("oracle: generate: %w", err)
	}

	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		for ch := range chunks {
			select {
			case out <- stream.Chunk{Text: ch.Content, Err: ch.Err}:
			case <-ctx.Done():
				return
			}
			if ch.Err != nil {
				return
			}
		}
	}()
	return stream.FromChunks(out, cancel), nil
}

// GenerateText runs a generation to completion.
func (c *Client) GenerateText(ctx context.Context, p Prompt) (string, error) {
	resp, err := c.provider.Complete(ctx, generationRequest(p))
	c.observe("generate", err)
	if err != nil {
		return "", fmt.Errorf("oracle: generate: %w", err)
	}
	return resp.Content, nil
}

func generationRequest(p Prompt) provider.CompletionRequest {
	var msgs []provider.LLMMessage
	if p.System != "" {
		msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: p.User})
	return provider.CompletionRequest{Messages: msgs}
}
