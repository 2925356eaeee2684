package handler

import (
	"codecollab/internal/service"
	"encoding/json"
	"net/http"
)

// AuthHandler handles guest identity endpoints
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// GuestTokenRequest is the request body for issuing a guest token
type GuestTokenRequest struct {
	Username string `json:"username"`
}

// IssueGuestToken handles POST /v1/auth/guest. The token is optional: a
// client presents it on the websocket to keep a stable user id across
// reconnects.
func (h *AuthHandler) IssueGuestToken(w http.ResponseWriter, r *http.Request) {
	var req GuestTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	resp, err := h.authSvc.IssueGuestToken(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
