package server

import (
	"log/slog"
	"net/http"

	"github.com/ragbot/ragbot-go/internal/logging"
	"github.com/ragbot/ragbot-go/internal/memory"
)

// handleStatus handles GET /api/status. It reports the chain state, store
// readiness, and what is currently loaded.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:      string(s.session.State()),
		StoreReady: s.session.StoreReady(),
		Chunks:     s.session.ChunkCount(),
		WindowLen:  len(s.session.Window()),
	}
	if s.cfg.Sources != nil {
		resp.Sources = s.cfg.Sources()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory handles GET /api/history. It returns the in-memory
// conversation window, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns := s.session.Window()
	if turns == nil {
		turns = []memory.Turn{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Turns: turns})
}

// handleReset handles POST /api/reset. It clears the conversation memory
// (and the persisted thread, when configured) but leaves the store intact.
// Resetting an empty conversation succeeds.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ResetMemory(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("reset failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal", "could not reset the conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
