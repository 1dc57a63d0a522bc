package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/middleware"
	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/services"
)

// CaseHandler handles the case workflow and custody ledger endpoints.
type CaseHandler struct {
	casework *services.CaseworkService
	ledger   *services.LedgerService
	reports  *services.ReportService
	logger   *zap.SugaredLogger
}

// NewCaseHandler creates a new case handler.
func NewCaseHandler(cw *services.CaseworkService, ledger *services.LedgerService, reports *services.ReportService, logger *zap.SugaredLogger) *CaseHandler {
	return &CaseHandler{casework: cw, ledger: ledger, reports: reports, logger: logger}
}

// List handles GET /api/v1/cases (priority-sorted dashboard)
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	cases, err := h.casework.Dashboard(r.Context(), 200)
	if err != nil {
		h.logger.Errorw("Failed to list cases", "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cases)
}

// Create handles POST /api/v1/cases
func (h *CaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.casework.CreateCase(r.Context(), req, middleware.Actor(r.Context()))
	if err != nil {
		h.logger.Errorw("Failed to create case", "case_number", req.CaseNumber, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Detail handles GET /api/v1/cases/{caseNumber}
func (h *CaseHandler) Detail(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")
	detail, err := h.casework.CaseDetail(r.Context(), caseNumber)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// ChangeStatus handles POST /api/v1/cases/{caseNumber}/status
func (h *CaseHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")
	var req models.ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := h.casework.ChangeStatus(r.Context(), caseNumber, req.Status, middleware.Actor(r.Context()))
	if err != nil {
		h.logger.Errorw("Failed to change status",
			"case_number", caseNumber, "status", req.Status, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

// AddSample handles POST /api/v1/cases/{caseNumber}/samples
func (h *CaseHandler) AddSample(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")
	var req models.AddSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sample, ev, err := h.casework.AddSample(r.Context(), caseNumber, req.Code, middleware.Actor(r.Context()), req.Note)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"sample": sample,
		"event":  ev,
	})
}

// Events handles GET /api/v1/cases/{caseNumber}/events
func (h *CaseHandler) Events(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")
	detail, err := h.casework.CaseDetail(r.Context(), caseNumber)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail.Events)
}

// Verify handles GET /api/v1/cases/{caseNumber}/verify
func (h *CaseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")
	res, err := h.ledger.Verify(r.Context(), caseNumber)
	if err != nil {
		h.logger.Errorw("Verification failed", "case_number", caseNumber, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Report handles GET /api/v1/cases/{caseNumber}/report (PDF download)
func (h *CaseHandler) Report(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")
	pdf, err := h.reports.CasePDF(r.Context(), caseNumber)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_report.pdf"`, caseNumber))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
