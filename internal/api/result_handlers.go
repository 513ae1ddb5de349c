package api

import (
	"errors"
	"net/http"

	"github.com/shutterscope/shutterscope/internal/db"
	"github.com/shutterscope/shutterscope/internal/models"
)

// ResultList is the body of GET /api/v1/results.
type ResultList struct {
	Results []models.Result `json:"results"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.store.ListResults(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("listing results", "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	writeJSON(w, http.StatusOK, ResultList{Results: results, Limit: limit, Offset: offset})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.store.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		s.logger.Error("getting result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	var result models.Result
	if err := decodeJSON(w, r, &result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := result.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.InsertResult(r.Context(), &result)
	if err != nil {
		s.logger.Error("inserting result", "url", result.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store result")
		return
	}
	s.stats.Invalidate(r.Context())

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.DeleteResult(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		s.logger.Error("deleting result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete result")
		return
	}
	s.stats.Invalidate(r.Context())

	w.WriteHeader(http.StatusNoContent)
}
