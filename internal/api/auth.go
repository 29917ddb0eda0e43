package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najdbe/internal/auth"
	"github.com/erazemk/najdbe/internal/catalog"
	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

// AuthHandler handles local account sessions.
type AuthHandler struct {
	Accounts *store.Accounts
	Issuer   *auth.Issuer
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  model.Principal `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "username and password required")
		return
	}

	user, err := h.Accounts.UserByUsername(r.Context(), req.Username)
	if errors.Is(err, model.ErrNotFound) {
		jsonError(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("Login failed", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
		return
	}

	token, err := h.Issuer.Issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("User logged in", "user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusOK, loginResponse{
		Token: token,
		User: model.Principal{
			ID:   strconv.FormatInt(user.ID, 10),
			Name: user.Name,
			Role: user.Role,
		},
	})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Issuer.Parse(auth.BearerToken(r.Header.Get("Authorization")))
	if err != nil {
		jsonError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
		return
	}

	if err := h.Accounts.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("User logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	id, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		jsonError(w, http.StatusUnauthorized, "unauthenticated", "not a local account")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.Accounts.User(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		jsonError(w, http.StatusUnauthorized, "unauthenticated", "current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Accounts.SetPassword(r.Context(), id, string(hash)); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("User changed own password", "user", user.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
