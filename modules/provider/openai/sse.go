package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/GreenD93/mcp-project/internal/provider"
)

// doneMarker ends an OpenAI event stream.
const doneMarker = "[DONE]"

// eventReader splits a text/event-stream body into events. Only the data
// field matters to chat completions; id, event and retry fields and comment
// lines are skipped.
type eventReader struct {
	r *bufio.Reader
}

// next returns the data of the next event, joining multi-line data with
// "\n". A final event without a trailing blank line is still returned.
func (er eventReader) next() (string, error) {
	var (
		data []string
		seen bool
	)
	for {
		line, err := er.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if seen {
				return strings.Join(data, "\n"), nil
			}
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(value, " "))
			seen = true
		}

		if eof {
			if seen {
				return strings.Join(data, "\n"), nil
			}
			return "", io.EOF
		}
	}
}

// readStream turns the answer's event stream into chunks on ch, ending at
// the [DONE] marker, at EOF, on the first error or when ctx is cancelled.
// It closes ch and body.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Closing the body is what unblocks a pending read.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	emit := func(c provider.StreamChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	events := eventReader{r: bufio.NewReader(body)}
	for {
		data, err := events.next()
		if ctx.Err() != nil {
			emit(provider.StreamChunk{Err: ctx.Err()})
			return
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			emit(provider.StreamChunk{Err: mapConnectionError(err)})
			return
		}

		data = strings.TrimSpace(data)
		switch data {
		case "":
			continue
		case doneMarker:
			return
		}

		var event chatStreamChunk
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			emit(provider.StreamChunk{Err: fmt.Errorf("openai: decoding stream event: %w", err)})
			return
		}
		for _, choice := range event.Choices[:min(len(event.Choices), 1)] {
			if choice.Delta.Content == "" && choice.FinishReason == nil {
				continue
			}
			if !emit(provider.StreamChunk{
				Content:      choice.Delta.Content,
				FinishReason: mapFinishReason(choice.FinishReason),
			}) {
				return
			}
		}
	}
}
