package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/services"
)

// AdminHandler handles user and partner-lab administration.
type AdminHandler struct {
	svc    *services.AuthService
	logger *zap.SugaredLogger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *services.AuthService, logger *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// CreateUser handles POST /api/v1/admin/users
// The API token of a new lab user is returned once, here, and never again.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, apiToken, err := h.svc.CreateUser(r.Context(), req)
	if err != nil {
		h.logger.Errorw("Failed to create user", "email", req.Email, "error", err)
		respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"user": user}
	if apiToken != "" {
		resp["api_token"] = apiToken
	}
	respondJSON(w, http.StatusCreated, resp)
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// CreateLab handles POST /api/v1/admin/labs
func (h *AdminHandler) CreateLab(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	lab, err := h.svc.CreateLab(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, lab)
}

// ListLabs handles GET /api/v1/admin/labs
func (h *AdminHandler) ListLabs(w http.ResponseWriter, r *http.Request) {
	labs, err := h.svc.ListLabs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list labs")
		return
	}
	respondJSON(w, http.StatusOK, labs)
}
