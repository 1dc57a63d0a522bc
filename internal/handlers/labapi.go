package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/services"
)

// APITokenHeader authenticates partner-lab API calls.
const APITokenHeader = "X-API-Token"

// LabAPIHandler handles the partner-lab API: receive and complete
// transitions authenticated by an opaque per-user token.
type LabAPIHandler struct {
	auth     *services.AuthService
	casework *services.CaseworkService
	logger   *zap.SugaredLogger
}

// NewLabAPIHandler creates a new partner-lab API handler.
func NewLabAPIHandler(auth *services.AuthService, cw *services.CaseworkService, logger *zap.SugaredLogger) *LabAPIHandler {
	return &LabAPIHandler{auth: auth, casework: cw, logger: logger}
}

// Receive handles POST /api/v1/cases/{caseNumber}/receive
func (h *LabAPIHandler) Receive(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.AuthorizeAPIToken(r.Context(), r.Header.Get(APITokenHeader))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	caseNumber := chi.URLParam(r, "caseNumber")
	ev, err := h.casework.ReceiveByLab(r.Context(), caseNumber, user.Email)
	if err != nil {
		h.logger.Errorw("Lab receive failed",
			"case_number", caseNumber, "lab_user", user.Email, "error", err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"event": ev,
	})
}

// Complete handles POST /api/v1/cases/{caseNumber}/complete
func (h *LabAPIHandler) Complete(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.AuthorizeAPIToken(r.Context(), r.Header.Get(APITokenHeader))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var req models.CompleteRequest
	if r.Body != nil {
		// Body is optional; an empty result summary is allowed
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	caseNumber := chi.URLParam(r, "caseNumber")
	ev, err := h.casework.CompleteByLab(r.Context(), caseNumber, user.Email, req)
	if err != nil {
		h.logger.Errorw("Lab complete failed",
			"case_number", caseNumber, "lab_user", user.Email, "error", err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"event": ev,
	})
}
