package httpx

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/thalir/agrimarket/internal/models"
	"github.com/thalir/agrimarket/internal/store"
)

// UsersHandler is the admin provisioning surface. Registration and login are
// handled upstream; this only manages the user rows other entities reference.
type UsersHandler struct {
	DB *sql.DB
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" {
		respondError(w, http.StatusBadRequest, "username and email are required")
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, req.Email, role)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListUsers(r.Context(), h.DB, page, pageSize)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}
