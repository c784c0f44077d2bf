package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/banshee-data/pendulum.report/internal/db"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 1000
	maxNotesBytes    = 64 * 1024
)

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return false
	}
	return true
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to list runs: "+err.Error())
		return
	}
	s.writeJSON(w, runs)
}

// loadRun fetches the run named in the path, writing the error response
// itself when the lookup fails.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (db.Run, bool) {
	if !s.requireDB(w) {
		return db.Run{}, false
	}
	id := r.PathValue("id")
	run, err := s.db.GetRun(r.Context(), id)
	if errors.Is(err, db.ErrRunNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "run not found")
		return db.Run{}, false
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load run: "+err.Error())
		return db.Run{}, false
	}
	return run, true
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	err := s.db.DeleteRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to delete run: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) setRunNotes(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	var req notesRequest
	body := io.LimitReader(r.Body, maxNotesBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	err := s.db.SetRunNotes(r.Context(), r.PathValue("id"), req.Notes)
	if errors.Is(err, db.ErrRunNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to update notes: "+err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"id": r.PathValue("id"), "notes": req.Notes})
}
