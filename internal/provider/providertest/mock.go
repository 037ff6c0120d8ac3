// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"errors"
	"sync"

	"github.com/GreenD93/mcp-project/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc  func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc    func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ModelNameFunc func() string

	mu             sync.Mutex
	CompleteCalls  int
	StreamCalls    int
	CompleteInputs []provider.CompletionRequest
	StreamInputs   []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.CompleteInputs = append(m.CompleteInputs, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.StreamInputs = append(m.StreamInputs, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// Calls returns the number of Complete and Stream calls made so far.
func (m *MockProvider) Calls() (complete, stream int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls, m.StreamCalls
}

// ErrScriptExhausted is returned by Replies once every reply was consumed.
var ErrScriptExhausted = errors.New("providertest: no scripted reply left")

// Replies returns a CompleteFunc answering with replies in order.
func Replies(replies ...string) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	var (
		mu   sync.Mutex
		next int
	)
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return provider.CompletionResponse{}, ErrScriptExhausted
		}
		r := replies[next]
		next++
		return provider.CompletionResponse{Content: r, FinishReason: provider.FinishReasonStop}, nil
	}
}

// Chunks returns a StreamFunc emitting parts as separate chunks.
func Chunks(parts ...string) func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return func(ctx context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		ch := make(chan provider.StreamChunk)
		go func() {
			defer close(ch)
			for _, p := range parts {
				select {
				case ch <- provider.StreamChunk{Content: p}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}
}

// Interface guard.
var _ provider.Provider = (*MockProvider)(nil)
