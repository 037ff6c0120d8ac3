package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GreenD93/mcp-project/internal/catalog"
	"github.com/GreenD93/mcp-project/internal/dispatch"
	"github.com/GreenD93/mcp-project/internal/tool"
)

// toolErrorResponse is returned when an operator tool call fails.
type toolErrorResponse struct {
	Error          string                 `json:"error"`
	UpstreamStatus int                    `json:"upstream_status,omitempty"`
	Validation     *tool.ValidationResult `json:"validation,omitempty"`
}

// handleInvokeTool calls a tool under an agent's policy. The body is the
// argument object; ?stream=1 relays the tool's response as it arrives.
func (g *Gateway) handleInvokeTool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentName := chi.URLParam(r, "agent")
		server := chi.URLParam(r, "server")
		name := chi.URLParam(r, "tool")
		streamed := r.URL.Query().Get("stream") == "1"

		args := map[string]any{}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &args); err != nil {
				writeError(w, http.StatusBadRequest, "arguments must be a JSON object")
				return
			}
		}

		out, err := g.dispatcher.InvokeTool(r.Context(), agentName, server, name, args, streamed)
		if err != nil {
			g.writeToolError(w, err)
			return
		}

		if !streamed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(out.Data)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		rc := http.NewResponseController(w)
		for part, err := range out.Stream {
			if err != nil {
				// Headers are sent; the truncated body is the only signal left.
				g.logger.Warn("gateway: tool stream failed", "server", server, "tool", name, "error", err)
				return
			}
			if _, err := io.WriteString(w, part); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func (g *Gateway) writeToolError(w http.ResponseWriter, err error) {
	var (
		ve *dispatch.ValidationError
		ue *tool.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, toolErrorResponse{Error: err.Error(), Validation: &ve.Result})
	case errors.As(err, &ue):
		writeJSON(w, http.StatusBadGateway, toolErrorResponse{Error: err.Error(), UpstreamStatus: ue.Status})
	case errors.Is(err, catalog.ErrAgentNotFound),
		errors.Is(err, dispatch.ErrNoToolScope),
		errors.Is(err, tool.ErrUnregisteredTool),
		errors.Is(err, tool.ErrUnknownServerHost):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
