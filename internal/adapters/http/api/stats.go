package api

import (
	"context"
	"net/http"

	"github.com/okian/cupcakes/pkg/logger"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) (map[string]any, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	logger        logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, l logger.Logger) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, logger: l}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats"
	if h.statsProvider == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	stats, err := h.statsProvider.GetStats(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
