package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/xhad/lectern/pkg/feedback"
	"github.com/xhad/lectern/pkg/store"
)

type ingestRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k"`
}

type feedbackRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = s.config.DefaultMaxResults
	}

	n, err := s.config.Pipeline.Ingest(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		log.Printf("Ingest error for %q: %v", req.Query, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ingested": n})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	topK := s.config.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	result, err := s.config.Pipeline.QueryStream(r.Context(), req.Question, topK, nil)
	switch {
	case errors.Is(err, store.ErrInvalidTopK):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("Query error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.config.Feedback.Submit(r.Context(), req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	case errors.Is(err, feedback.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, feedback.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("Feedback error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to send feedback")
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.config.Usage == nil {
		writeError(w, http.StatusNotFound, "usage tracking is disabled")
		return
	}
	stats, err := s.config.Usage.Stats()
	if err != nil {
		log.Printf("Usage error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
