package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string  `json:"status"` // "ok" or "loading"
	Agents int     `json:"agents"`
	Uptime float64 `json:"uptime_seconds"`
}

// handleHealth returns 200 once a roster is loaded, 503 before.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: time.Since(g.startedAt).Truncate(time.Second).Seconds(),
		}

		code := http.StatusOK
		if r := g.dispatcher.Roster(); r == nil {
			resp.Status = "loading"
			code = http.StatusServiceUnavailable
		} else {
			resp.Agents = r.Catalog.Len()
		}
		writeJSON(w, code, resp)
	}
}
