package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/services"
	"github.com/dnafasttrack/custody-server/internal/store"
)

type labAPIFixture struct {
	router   *chi.Mux
	store    store.Store
	casework *services.CaseworkService
	ledger   *services.LedgerService
	labToken string
}

func newLabAPIFixture(t *testing.T) *labAPIFixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	logger := zap.NewNop().Sugar()

	ledger := services.NewLedgerService(st, logger)
	cw := services.NewCaseworkService(st, ledger, services.NewPriorityService(), logger)
	auth := services.NewAuthService(st, "test-secret", logger)

	_, labToken, err := auth.CreateUser(ctx, models.CreateUserRequest{
		Email:    "lab@partner.example",
		Password: "longenough",
		Role:     models.RoleLab,
	})
	if err != nil {
		t.Fatalf("create lab user: %v", err)
	}

	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{
		CaseNumber:  "CASE-001",
		OffenceType: "burglary",
	}, "officer@police.example"); err != nil {
		t.Fatalf("create case: %v", err)
	}

	h := NewLabAPIHandler(auth, cw, logger)
	r := chi.NewRouter()
	r.Post("/api/v1/cases/{caseNumber}/receive", h.Receive)
	r.Post("/api/v1/cases/{caseNumber}/complete", h.Complete)

	return &labAPIFixture{router: r, store: st, casework: cw, ledger: ledger, labToken: labToken}
}

func (f *labAPIFixture) do(t *testing.T, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set(APITokenHeader, token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLabAPIRejectsMissingOrUnknownToken(t *testing.T) {
	f := newLabAPIFixture(t)

	if rec := f.do(t, "/api/v1/cases/CASE-001/receive", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", rec.Code)
	}
	if rec := f.do(t, "/api/v1/cases/CASE-001/receive", "bogus", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: status %d", rec.Code)
	}

	// Rejected calls must leave no ledger trace.
	events, _ := f.store.EventsByCase(context.Background(), "CASE-001")
	if len(events) != 1 {
		t.Fatalf("expected only the creation event, got %d", len(events))
	}
}

func TestLabAPIUnknownCaseIs404(t *testing.T) {
	f := newLabAPIFixture(t)

	rec := f.do(t, "/api/v1/cases/CASE-404/receive", f.labToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown case: status %d, body %s", rec.Code, rec.Body.String())
	}

	events, _ := f.store.EventsByCase(context.Background(), "CASE-404")
	if len(events) != 0 {
		t.Fatalf("events recorded for unknown case: %+v", events)
	}
}

func TestLabAPIReceiveAndComplete(t *testing.T) {
	ctx := context.Background()
	f := newLabAPIFixture(t)

	rec := f.do(t, "/api/v1/cases/CASE-001/receive", f.labToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("receive: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK    bool                `json:"ok"`
		Event models.CustodyEvent `json:"event"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Event.Action != models.ActionReceivedByLab || resp.Event.Actor != "lab@partner.example" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	c, _ := f.store.FindCase(ctx, "CASE-001")
	if c.Status != "in_lab" || c.LabAssigned != "lab@partner.example" {
		t.Fatalf("case after receive: %+v", c)
	}

	rec = f.do(t, "/api/v1/cases/CASE-001/complete", f.labToken,
		`{"result_summary":"DNA profile obtained"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d, body %s", rec.Code, rec.Body.String())
	}

	c, _ = f.store.FindCase(ctx, "CASE-001")
	if c.Status != "completed" {
		t.Fatalf("case after complete: %+v", c)
	}
	results, _ := f.store.LabResultsByCase(ctx, "CASE-001")
	if len(results) != 1 || results[0].ResultSummary != "DNA profile obtained" {
		t.Fatalf("lab results: %+v", results)
	}

	res, err := f.ledger.Verify(ctx, "CASE-001")
	if err != nil || !res.Valid || res.Events != 3 {
		t.Fatalf("chain after workflow: %+v err=%v", res, err)
	}
}
