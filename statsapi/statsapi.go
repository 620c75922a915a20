// Package statsapi serves the read-only statistics endpoint. The HTTP
// surface is a single static, parameterless route, so net/http's
// ServeMux (method+path pattern matching since Go 1.22) covers it
// directly; see DESIGN.md for why a larger routing layer was not used.
package statsapi

import (
	"encoding/json"
	"net/http"

	"github.com/semihalev/zlog/v2"

	"github.com/cleandns/cleandns/stats"
)

// Handler serves GET /stats from a shared stats.Aggregator.
type Handler struct {
	stats *stats.Aggregator
}

// NewHandler returns a Handler reading from agg.
func NewHandler(agg *stats.Aggregator) *Handler {
	return &Handler{stats: agg}
}

// Mux returns an http.Handler routing GET /stats to h, 404 elsewhere.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", h.serveStats)
	return mux
}

// statsResponse shapes the JSON body as
// {"domains": {<qname>: {"count": int, "last_resolved_at": ..., "ips": [...], "cache_hits": int}}}.
type statsResponse struct {
	Domains map[string]stats.Snapshot `json:"domains"`
}

func (h *Handler) serveStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Domains: h.stats.All()}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		zlog.Warn("statsapi: encode response failed", zlog.String("error", err.Error()))
	}
}
