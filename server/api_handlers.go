package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-client/users"
)

const contentTypeJSON = "application/json; charset=utf-8"

type verifyRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type itemRequest struct {
	Name string `json:"name"`
	Done bool   `json:"done"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// VerifyCredentialsHandler answers 200 with the user's profile, or 401.
func (s *Server) VerifyCredentialsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Malformed JSON body", http.StatusBadRequest)
			return
		}

		profile, err := s.table.Verify(req.Username, req.Password)
		if errors.Is(err, users.ErrNoMatch) {
			writeJSONError(w, "invalid_credentials", "The username or password is incorrect", http.StatusUnauthorized)
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("credential check failed")
			writeJSONError(w, "server_error", "credential check failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// MeHandler echoes the identity carried by the access token.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		writeJSON(w, http.StatusOK, users.Profile{
			ID:          claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.Name,
			Roles:       users.NewRoles(claims.Roles...),
		})
	}
}

func (s *Server) ListItemsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		writeJSON(w, http.StatusOK, s.items.list(claims.Subject))
	}
}

func (s *Server) ListAllItemsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.items.list(""))
	}
}

func (s *Server) CreateItemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		req, ok := decodeItemRequest(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusCreated, s.items.create(claims.Subject, req.Name))
	}
}

func (s *Server) GetItemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		it, ok := s.items.get(claims.Subject, r.PathValue("id"))
		if !ok {
			writeJSONError(w, "not_found", "item not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func (s *Server) UpdateItemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		req, ok := decodeItemRequest(w, r)
		if !ok {
			return
		}
		it, ok := s.items.update(claims.Subject, Item{ID: r.PathValue("id"), Name: req.Name, Done: req.Done})
		if !ok {
			writeJSONError(w, "not_found", "item not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func (s *Server) DeleteItemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		if !s.items.delete(claims.Subject, r.PathValue("id")) {
			writeJSONError(w, "not_found", "item not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeItemRequest(w http.ResponseWriter, r *http.Request) (itemRequest, bool) {
	var req itemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, "invalid_request", "Malformed JSON body", http.StatusBadRequest)
		return req, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSONError(w, "invalid_request", "name is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
