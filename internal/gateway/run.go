package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GreenD93/mcp-project/internal/agent"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/stream"
	"github.com/GreenD93/mcp-project/internal/tool"
	"github.com/GreenD93/mcp-project/internal/trace"
)

// RunRequest is the body of POST /v1/run and each websocket request.
type RunRequest struct {
	Text string `json:"text"`
}

// RunResponse is the body of POST /v1/run.
type RunResponse struct {
	TraceID    string                 `json:"trace_id"`
	Agent      string                 `json:"agent"`
	Status     trace.Status           `json:"status"`
	Answer     string                 `json:"answer"`
	Action     *agent.Action          `json:"action,omitempty"`
	Plan       trace.Plan             `json:"plan"`
	Validation *tool.ValidationResult `json:"validation,omitempty"`
	Trace      *trace.Trace           `json:"trace"`
}

// handleRun runs one request and returns the fully generated answer.
func (g *Gateway) handleRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RunRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := g.dispatcher.Run(r.Context(), req.Text)
		if err != nil {
			writeError(w, runErrorStatus(err), err.Error())
			return
		}

		answer, err := stream.Collect(resp.Answer)
		if err != nil {
			// The partial answer is still returned; the trace has the details.
			g.logger.Warn("gateway: answer stream failed", "trace_id", resp.Trace.ID, "error", err)
		}

		writeJSON(w, http.StatusOK, RunResponse{
			TraceID:    resp.Trace.ID,
			Agent:      resp.Agent,
			Status:     resp.Status,
			Answer:     answer,
			Action:     resp.Action,
			Plan:       resp.Plan,
			Validation: resp.Validation,
			Trace:      resp.Trace,
		})
	}
}

func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Stream message types.
const (
	frameMeta  = "meta"
	frameDelta = "delta"
	frameDone  = "done"
	frameError = "error"
)

// StreamFrame is one server message on /v1/stream. Each request produces a
// meta frame, zero or more delta frames and a done frame, or one error frame.
type StreamFrame struct {
	Type    string        `json:"type"`
	TraceID string        `json:"trace_id,omitempty"`
	Agent   string        `json:"agent,omitempty"`
	Status  trace.Status  `json:"status,omitempty"`
	Plan    *trace.Plan   `json:"plan,omitempty"`
	Action  *agent.Action `json:"action,omitempty"`
	Text    string        `json:"text,omitempty"`
	Trace   *trace.Trace  `json:"trace,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// handleStream serves requests over a websocket, one at a time, writing the
// answer fragment by fragment as it is generated.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()
		conn.SetReadLimit(g.config.MaxBodyBytes)

		ctx := r.Context()
		for {
			var req RunRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					_ = conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				if !errors.Is(err, context.Canceled) {
					g.logger.Debug("websocket read ended", "error", err)
				}
				return
			}
			if err := g.streamOne(ctx, conn, req.Text); err != nil {
				g.logger.Warn("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) streamOne(ctx context.Context, conn *websocket.Conn, text string) error {
	resp, err := g.dispatcher.Run(ctx, text)
	if err != nil {
		return wsjson.Write(ctx, conn, StreamFrame{Type: frameError, Error: err.Error()})
	}

	plan := resp.Plan
	if err := wsjson.Write(ctx, conn, StreamFrame{
		Type:    frameMeta,
		TraceID: resp.Trace.ID,
		Agent:   resp.Agent,
		Status:  resp.Status,
		Plan:    &plan,
		Action:  resp.Action,
	}); err != nil {
		return err
	}

	for part, err := range resp.Answer {
		if err != nil {
			return wsjson.Write(ctx, conn, StreamFrame{Type: frameError, TraceID: resp.Trace.ID, Error: err.Error()})
		}
		if err := wsjson.Write(ctx, conn, StreamFrame{Type: frameDelta, Text: part}); err != nil {
			return err
		}
	}

	return wsjson.Write(ctx, conn, StreamFrame{Type: frameDone, TraceID: resp.Trace.ID, Trace: resp.Trace})
}
