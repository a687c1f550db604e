package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/matchmaker/internal/match"
	"github.com/lazypower/matchmaker/internal/store"
)

// FindMatchesRequest is the body of POST /api/matches.
type FindMatchesRequest struct {
	TenantID  string `json:"tenant_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

// FindMatchesResponse lists the ranked candidates. PartialFailures holds
// the user IDs whose suggestion could not be recorded.
type FindMatchesResponse struct {
	Candidates      []match.Candidate `json:"candidates"`
	PartialFailures []string          `json:"partial_failures"`
}

// InteractionRequest is the body of POST /api/matches/interactions.
type InteractionRequest struct {
	TenantID        string `json:"tenant_id"`
	UserID          string `json:"user_id"`
	CandidateID     string `json:"candidate_id"`
	ChannelID       string `json:"channel_id"`
	InteractionType string `json:"interaction_type"`
}

func (s *Server) handleFindMatches(w http.ResponseWriter, r *http.Request) {
	var req FindMatchesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TenantID == "" || req.ChannelID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, channel_id and user_id required")
		return
	}

	res, err := s.engine.FindMatches(r.Context(), req.TenantID, req.ChannelID, req.UserID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	resp := FindMatchesResponse{
		Candidates:      res.Candidates,
		PartialFailures: res.FailedIDs(),
	}
	if resp.Candidates == nil {
		resp.Candidates = []match.Candidate{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TenantID == "" || req.UserID == "" || req.CandidateID == "" || req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, user_id, candidate_id and channel_id required")
		return
	}
	kind, err := store.ParseInteractionType(req.InteractionType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := s.recorder.Record(r.Context(), req.TenantID, req.UserID, req.CandidateID, req.ChannelID, kind)
	if err != nil {
		// Reported to the caller but never escalated past the status code.
		s.log.Warn().Err(err).
			Str("tenant", req.TenantID).
			Str("requester", req.UserID).
			Str("candidate", req.CandidateID).
			Str("channel", req.ChannelID).
			Str("interaction", string(kind)).
			Msg("record interaction failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	matches, err := s.store.ListMatches(r.Context(), tenantID, userID, limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if matches == nil {
		matches = []store.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req struct {
		Before string `json:"before"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Before == "" {
		writeError(w, http.StatusBadRequest, "before required")
		return
	}
	before, err := time.Parse(time.RFC3339, req.Before)
	if err != nil {
		writeError(w, http.StatusBadRequest, "before must be RFC3339")
		return
	}

	n, err := s.store.ExpireSuggestions(r.Context(), tenantID, before)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log.Info().Str("tenant", tenantID).Time("before", before).Int64("expired", n).Msg("suggestions expired")
	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}
