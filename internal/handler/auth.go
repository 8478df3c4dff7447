package handler

import (
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/model"
	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/service"
)

// AuthHandler issues identity tokens. Token issuance here is deliberately
// open, in the manner of a development deployment sitting behind a real
// identity provider: the caller declares who they are, and the policy layer
// decides what that identity can see. An unknown role gets a token that can
// query nothing.
type AuthHandler struct {
	auth   *service.AuthService
	policy *policy.Policy
}

func NewAuthHandler(auth *service.AuthService, pol *policy.Policy) *AuthHandler {
	return &AuthHandler{auth: auth, policy: pol}
}

type tokenRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IssueToken handles POST /auth/token. The caller must say who they are; an
// empty POST does not mint a token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Username == "" {
		req.Username = req.UserID
	}

	id := model.Identity{
		UserID:   req.UserID,
		Username: req.Username,
		Role:     strings.ToLower(req.Role),
	}
	token, err := h.auth.IssueToken(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:    token,
		UserID:   id.UserID,
		Username: id.Username,
		Role:     id.Role,
	})
}

// ListRoles handles GET /auth/roles, exposing the closed role set so clients
// can present a chooser.
func (h *AuthHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": h.policy.Roles()})
}
