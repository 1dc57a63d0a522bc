package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/services"
)

// AuthHandler handles login and officer self-registration.
type AuthHandler struct {
	svc    *services.AuthService
	logger *zap.SugaredLogger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *services.AuthService, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields: email, password")
		return
	}

	resp, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Register handles POST /api/v1/auth/register (officer self-registration)
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Errorw("Registration failed", "email", req.Email, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}
