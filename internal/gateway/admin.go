package gateway

import "net/http"

// handleListAgents lists the catalogued agents.
func (g *Gateway) handleListAgents() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.dispatcher.Agents())
	}
}

// handleRefresh rebuilds the roster from disk. On failure the previous
// roster keeps serving.
func (g *Gateway) handleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := g.dispatcher.Refresh(); err != nil {
			g.logger.Error("gateway: refresh failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		agents := 0
		if r := g.dispatcher.Roster(); r != nil {
			agents = r.Catalog.Len()
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed", "agents": agents})
	}
}
