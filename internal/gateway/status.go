package gateway

import (
	"net/http"
	"time"

	"github.com/GreenD93/mcp-project/internal/core"
)

// StatusResponse is the JSON response for GET /v1/status.
type StatusResponse struct {
	Uptime   float64   `json:"uptime_seconds"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
	Agents   int       `json:"agents"`
	Fallback string    `json:"fallback_agent,omitempty"`
	Problems []string  `json:"problems"`
	Modules  []string  `json:"modules"`
}

// handleStatus reports the roster snapshot, including the entries skipped
// while building it.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Problems: []string{},
			Modules:  []string{},
		}
		if r := g.dispatcher.Roster(); r != nil {
			resp.LoadedAt = r.LoadedAt
			resp.Agents = r.Catalog.Len()
			resp.Fallback = r.Fallback().Name()
			for _, p := range r.Problems {
				resp.Problems = append(resp.Problems, p.Error())
			}
		}
		for _, m := range core.GetModules() {
			resp.Modules = append(resp.Modules, string(m.ID))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
