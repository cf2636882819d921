package handlers

import (
	"log"
	"net/http"

	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/session"
)

// StatsHandler reports service-level counters.
type StatsHandler struct {
	sessions    *session.Manager
	enrollments database.EnrollmentReader
	indexes     *database.IndexSet
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(sessions *session.Manager, enrollments database.EnrollmentReader, indexes *database.IndexSet) *StatsHandler {
	return &StatsHandler{
		sessions:    sessions,
		enrollments: enrollments,
		indexes:     indexes,
	}
}

// Get returns live session and enrollment counters.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	enrolled, err := h.enrollments.CountActive(r.Context())
	if err != nil {
		log.Printf("Failed to count enrollments: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to count enrollments")
		return
	}

	indexSizes := make(map[string]int)
	for _, index := range h.indexes.All() {
		indexSizes[string(index.Version())] = index.Count()
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"active_sessions":    h.sessions.Count(),
		"active_enrollments": enrolled,
		"index_sizes":        indexSizes,
	})
}
