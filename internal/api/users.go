package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najdbe/internal/catalog"
	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

// UsersHandler handles account management endpoints (admin only).
type UsersHandler struct {
	Accounts *store.Accounts
}

type createUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.Accounts.Users(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "username, password, and role required")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.Accounts.CreateUser(r.Context(), req.Username, req.Name, string(hash), req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("User created", "user", PrincipalFrom(r.Context()).ID, "new_user", req.Username, "role", req.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid user id")
		return
	}

	p := PrincipalFrom(r.Context())
	if p.ID == strconv.FormatInt(id, 10) {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "cannot delete yourself")
		return
	}

	if err := h.Accounts.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("User deleted", "user", p.ID, "deleted_user", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
