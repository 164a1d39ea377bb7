package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/billix-app/scored/internal/catalog"
	"github.com/billix-app/scored/internal/score"
	"github.com/billix-app/scored/internal/store"
)

// applyEventRequest is the payload for POST /api/v1/scores/{userID}/events.
type applyEventRequest struct {
	EventTypeID       string `json:"event_type_id"`
	MagnitudeOverride *int   `json:"magnitude_override,omitempty"`
}

// scoreResponse is the snapshot plus derived badge state.
type scoreResponse struct {
	UserID       string                  `json:"user_id"`
	Components   map[score.Component]int `json:"components"`
	Overall      int                     `json:"overall_score"`
	Badge        score.Badge             `json:"badge"`
	PointsToNext *int                    `json:"points_to_next_level,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

type historyResponse struct {
	Entries    []score.HistoryEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// applyEvent handles POST /api/v1/scores/{userID}/events.
func (s *Server) applyEvent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req applyEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	if req.EventTypeID == "" {
		http.Error(w, `{"error":"event_type_id is required"}`, http.StatusBadRequest)
		return
	}

	entry, err := s.svc.ApplyEvent(r.Context(), userID, req.EventTypeID, req.MagnitudeOverride)
	if err != nil {
		writeApplyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// getScore handles GET /api/v1/scores/{userID}.
func (s *Server) getScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	snap, err := s.svc.GetScore(r.Context(), userID)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"score unavailable: %v"}`, err), http.StatusServiceUnavailable)
		return
	}

	resp := scoreResponse{
		UserID:     snap.UserID,
		Components: snap.Components,
		Overall:    snap.Overall,
		Badge:      score.Classify(snap.Overall),
		UpdatedAt:  snap.UpdatedAt,
	}
	if pts, ok := score.PointsToNext(snap.Overall); ok {
		resp.PointsToNext = &pts
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// getHistory handles GET /api/v1/scores/{userID}/history.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	cursor := r.URL.Query().Get("cursor")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, next, err := s.svc.GetHistory(r.Context(), userID, cursor, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"history unavailable: %v"}`, err), http.StatusServiceUnavailable)
		return
	}

	if entries == nil {
		entries = []score.HistoryEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(historyResponse{Entries: entries, NextCursor: next})
}

// auditScore handles POST /api/v1/scores/{userID}/audit. With ?repair=true a
// drifted snapshot is rewritten from the ledger.
func (s *Server) auditScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var (
		report any
		err    error
	)
	if r.URL.Query().Get("repair") == "true" {
		report, err = s.auditor.Repair(r.Context(), userID)
	} else {
		report, err = s.auditor.Verify(r.Context(), userID)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"audit failed: %v"}`, err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func writeApplyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownEventType):
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusConflict)
	default:
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusServiceUnavailable)
	}
}
