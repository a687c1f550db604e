package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/matchmaker/internal/store"
)

// ProfileRequest is the body of PUT /api/tenants/{tenantID}/profiles/{userID}.
// Opt-out state has its own endpoints and is not touched here.
type ProfileRequest struct {
	DisplayName  string `json:"display_name"`
	RealName     string `json:"real_name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Role         string `json:"role"`
}

// ChannelRequest is the body of PUT /api/tenants/{tenantID}/channels/{channelID}.
// A non-nil Members replaces the whole member list.
type ChannelRequest struct {
	Name      string    `json:"name"`
	IsPrivate bool      `json:"is_private"`
	Members   *[]string `json:"members,omitempty"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")

	var req ProfileRequest
	if !decode(w, r, &req) {
		return
	}

	err := s.store.UpsertProfile(r.Context(), &store.Profile{
		TenantID:     tenantID,
		UserID:       userID,
		DisplayName:  req.DisplayName,
		RealName:     req.RealName,
		Email:        req.Email,
		Organization: req.Organization,
		Role:         req.Role,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.handleGetProfile(w, r)
}

func (s *Server) handleOptOut(optedOut bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantID")
		userID := chi.URLParam(r, "userID")

		if err := s.store.SetOptOut(r.Context(), tenantID, userID, optedOut); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.log.Info().Str("tenant", tenantID).Str("user", userID).Bool("opted_out", optedOut).Msg("opt-out changed")
		s.handleGetProfile(w, r)
	}
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetChannel(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "channelID"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpsertChannel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	channelID := chi.URLParam(r, "channelID")

	var req ChannelRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	err := s.store.UpsertChannel(ctx, &store.Channel{
		TenantID:  tenantID,
		ChannelID: channelID,
		Name:      req.Name,
		IsPrivate: req.IsPrivate,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if req.Members != nil {
		if err := s.store.ReplaceChannelMembers(ctx, tenantID, channelID, *req.Members); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}
	s.handleGetChannel(w, r)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	err := s.store.AddChannelMember(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "channelID"), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	err := s.store.RemoveChannelMember(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "channelID"), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
