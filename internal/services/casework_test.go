package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/store"
)

func newTestCasework() (*CaseworkService, *LedgerService, store.Store) {
	st := store.NewMemoryStore()
	logger := zap.NewNop().Sugar()
	ledger := NewLedgerService(st, logger)
	cw := NewCaseworkService(st, ledger, NewPriorityService(), logger)
	return cw, ledger, st
}

func TestCreateCaseSeedsSampleAndFirstEvent(t *testing.T) {
	ctx := context.Background()
	cw, _, st := newTestCasework()

	resp, err := cw.CreateCase(ctx, models.CreateCaseRequest{
		CaseNumber:       "CASE-2026-001",
		OffenceType:      "murder",
		Description:      "evidence from scene",
		SuspectInCustody: true,
	}, "officer@police.example")
	if err != nil {
		t.Fatalf("create case: %v", err)
	}

	if resp.Case.Status != "created" {
		t.Fatalf("case status = %q", resp.Case.Status)
	}
	if resp.Case.PriorityScore != 130 { // murder 100 + custody 30
		t.Fatalf("priority = %d", resp.Case.PriorityScore)
	}
	if resp.Sample.Code != "S-000001-A" || resp.Sample.Status != "sealed" {
		t.Fatalf("unexpected sample: %+v", resp.Sample)
	}
	if resp.Sample.QRPath != "qrcodes/S-000001-A.png" {
		t.Fatalf("qr path = %q", resp.Sample.QRPath)
	}
	if resp.Event.Action != models.ActionCreatedCase || resp.Event.PrevHash != "" || resp.Event.Seq != 1 {
		t.Fatalf("unexpected first event: %+v", resp.Event)
	}

	events, _ := st.EventsByCase(ctx, "CASE-2026-001")
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
}

func TestCreateCaseValidation(t *testing.T) {
	ctx := context.Background()
	cw, _, _ := newTestCasework()

	var verr *ValidationError
	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{OffenceType: "assault"}, "officer"); !errors.As(err, &verr) {
		t.Fatalf("missing case number: %v", err)
	}
	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001"}, "officer"); !errors.As(err, &verr) {
		t.Fatalf("missing offence type: %v", err)
	}

	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001", OffenceType: "assault"}, "officer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001", OffenceType: "assault"}, "officer")
	if !errors.As(err, &verr) || verr.Field != "case_number" {
		t.Fatalf("duplicate case number: %v", err)
	}
}

func TestChangeStatusAppendsEventPerCall(t *testing.T) {
	ctx := context.Background()
	cw, ledger, st := newTestCasework()

	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001", OffenceType: "burglary"}, "officer"); err != nil {
		t.Fatalf("create: %v", err)
	}

	ev, err := cw.ChangeStatus(ctx, "CASE-001", "submitted_to_lab", "officer")
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if ev.Action != "status:submitted_to_lab" {
		t.Fatalf("action = %q", ev.Action)
	}

	// Repeating the same status records another event.
	if _, err := cw.ChangeStatus(ctx, "CASE-001", "submitted_to_lab", "officer"); err != nil {
		t.Fatalf("repeat change status: %v", err)
	}
	events, _ := st.EventsByCase(ctx, "CASE-001")
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].PrevHash != events[i-1].Hash {
			t.Fatalf("event %d not linked to predecessor", i)
		}
	}

	res, err := ledger.Verify(ctx, "CASE-001")
	if err != nil || !res.Valid {
		t.Fatalf("chain invalid after status changes: %+v err=%v", res, err)
	}

	if _, err := cw.ChangeStatus(ctx, "CASE-404", "submitted_to_lab", "officer"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown case: %v", err)
	}
}

func TestAddSample(t *testing.T) {
	ctx := context.Background()
	cw, _, st := newTestCasework()

	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001", OffenceType: "rape"}, "officer"); err != nil {
		t.Fatalf("create: %v", err)
	}

	sample, ev, err := cw.AddSample(ctx, "CASE-001", "S-000001-B", "officer", "swab from scene")
	if err != nil {
		t.Fatalf("add sample: %v", err)
	}
	if sample.Status != "sealed" || ev.Action != "sample_added" || ev.SampleCode != "S-000001-B" {
		t.Fatalf("unexpected: sample=%+v event=%+v", sample, ev)
	}

	samples, _ := st.SamplesByCase(ctx, "CASE-001")
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}

	var verr *ValidationError
	if _, _, err := cw.AddSample(ctx, "CASE-001", "S-000001-B", "officer", ""); !errors.As(err, &verr) {
		t.Fatalf("duplicate sample code: %v", err)
	}
	if _, _, err := cw.AddSample(ctx, "CASE-404", "S-000404-A", "officer", ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown case: %v", err)
	}
}

func TestLabWorkflowReceiveAndComplete(t *testing.T) {
	ctx := context.Background()
	cw, ledger, st := newTestCasework()

	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001", OffenceType: "armed_robbery"}, "officer"); err != nil {
		t.Fatalf("create: %v", err)
	}

	ev, err := cw.ReceiveByLab(ctx, "CASE-001", "lab@partner.example")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if ev.Action != models.ActionReceivedByLab || ev.Actor != "lab@partner.example" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	c, _ := st.FindCase(ctx, "CASE-001")
	if c.Status != "in_lab" || c.LabAssigned != "lab@partner.example" {
		t.Fatalf("case after receive: %+v", c)
	}

	ev, err = cw.CompleteByLab(ctx, "CASE-001", "lab@partner.example", models.CompleteRequest{
		ResultSummary: "DNA profile obtained, match found",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ev.Action != models.ActionCompletedByLab {
		t.Fatalf("unexpected event: %+v", ev)
	}
	c, _ = st.FindCase(ctx, "CASE-001")
	if c.Status != "completed" {
		t.Fatalf("case after complete: %+v", c)
	}
	results, _ := st.LabResultsByCase(ctx, "CASE-001")
	if len(results) != 1 || results[0].ResultSummary != "DNA profile obtained, match found" {
		t.Fatalf("lab results: %+v", results)
	}

	res, err := ledger.Verify(ctx, "CASE-001")
	if err != nil || !res.Valid || res.Events != 3 {
		t.Fatalf("chain after lab workflow: %+v err=%v", res, err)
	}
}

// tamperingStore corrupts one field of the second event on read, standing in
// for out-of-band storage manipulation.
type tamperingStore struct {
	store.Store
}

func (s *tamperingStore) EventsByCase(ctx context.Context, caseNumber string) ([]models.CustodyEvent, error) {
	events, err := s.Store.EventsByCase(ctx, caseNumber)
	if err != nil || len(events) < 2 {
		return events, err
	}
	events[1].Actor = "intruder"
	return events, nil
}

func TestCompleteByLabRefusesBrokenChain(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	logger := zap.NewNop().Sugar()
	tampered := &tamperingStore{Store: mem}
	ledger := NewLedgerService(tampered, logger)
	cw := NewCaseworkService(tampered, ledger, NewPriorityService(), logger)

	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001", OffenceType: "murder"}, "officer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cw.ReceiveByLab(ctx, "CASE-001", "lab@partner.example"); err != nil {
		t.Fatalf("receive: %v", err)
	}

	var ierr *IntegrityError
	_, err := cw.CompleteByLab(ctx, "CASE-001", "lab@partner.example", models.CompleteRequest{})
	if !errors.As(err, &ierr) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if ierr.CaseNumber != "CASE-001" || ierr.BreakAt == 0 {
		t.Fatalf("unexpected integrity error: %+v", ierr)
	}

	// Refusal leaves no completion trace.
	results, _ := mem.LabResultsByCase(ctx, "CASE-001")
	if len(results) != 0 {
		t.Fatalf("lab result filed against broken chain: %+v", results)
	}
	c, _ := mem.FindCase(ctx, "CASE-001")
	if c.Status == "completed" {
		t.Fatal("case completed against broken chain")
	}
}

// Acting on an unknown case must fail without leaving any ledger trace.
func TestLabActionsOnUnknownCase(t *testing.T) {
	ctx := context.Background()
	cw, _, st := newTestCasework()

	if _, err := cw.ReceiveByLab(ctx, "CASE-404", "lab@partner.example"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("receive unknown case: %v", err)
	}
	if _, err := cw.CompleteByLab(ctx, "CASE-404", "lab@partner.example", models.CompleteRequest{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("complete unknown case: %v", err)
	}

	events, _ := st.EventsByCase(ctx, "CASE-404")
	if len(events) != 0 {
		t.Fatalf("events recorded against unknown case: %+v", events)
	}
}

func TestDashboardOrdersByPriority(t *testing.T) {
	ctx := context.Background()
	cw, _, _ := newTestCasework()

	seed := []struct {
		number  string
		offence string
	}{
		{"CASE-001", "burglary"},
		{"CASE-002", "murder"},
		{"CASE-003", "assault"},
	}
	for _, s := range seed {
		if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: s.number, OffenceType: s.offence}, "officer"); err != nil {
			t.Fatalf("create %s: %v", s.number, err)
		}
	}

	cases, err := cw.Dashboard(ctx, 0)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(cases) != 3 || cases[0].CaseNumber != "CASE-002" || cases[2].CaseNumber != "CASE-001" {
		t.Fatalf("unexpected order: %+v", cases)
	}

	capped, err := cw.Dashboard(ctx, 2)
	if err != nil || len(capped) != 2 {
		t.Fatalf("capped dashboard: %v %+v", err, capped)
	}
}

// agedCaseStore serves a fixed case list with controlled creation times,
// standing in for rows persisted long ago.
type agedCaseStore struct {
	store.Store
	cases []models.Case
}

func (s *agedCaseStore) ListCases(ctx context.Context) ([]models.Case, error) {
	out := make([]models.Case, len(s.cases))
	copy(out, s.cases)
	return out, nil
}

func TestDashboardRefreshesPriorityForAge(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()
	now := time.Now().UTC()

	st := &agedCaseStore{
		Store: store.NewMemoryStore(),
		cases: []models.Case{
			{CaseNumber: "CASE-NEW", OffenceType: "burglary", PriorityScore: 40, CreatedAt: now},
			{CaseNumber: "CASE-OLD", OffenceType: "burglary", PriorityScore: 40, CreatedAt: now.Add(-400 * 24 * time.Hour)},
		},
	}
	ledger := NewLedgerService(st, logger)
	cw := NewCaseworkService(st, ledger, NewPriorityService(), logger)

	cases, err := cw.Dashboard(ctx, 0)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if cases[0].CaseNumber != "CASE-OLD" {
		t.Fatalf("aged case did not climb the queue: %+v", cases)
	}
	// 400 days is past the bonus cap: stored 40 + capped 50.
	if cases[0].PriorityScore != 90 {
		t.Fatalf("aged score = %d, want 90", cases[0].PriorityScore)
	}
	if cases[1].PriorityScore != 40 {
		t.Fatalf("fresh score = %d, want 40", cases[1].PriorityScore)
	}
}

func TestCaseDetail(t *testing.T) {
	ctx := context.Background()
	cw, _, _ := newTestCasework()

	if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: "CASE-001", OffenceType: "assault"}, "officer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cw.ChangeStatus(ctx, "CASE-001", "submitted_to_lab", "officer"); err != nil {
		t.Fatalf("change status: %v", err)
	}

	detail, err := cw.CaseDetail(ctx, "CASE-001")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Case.CaseNumber != "CASE-001" || len(detail.Samples) != 1 || len(detail.Events) != 2 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	if _, err := cw.CaseDetail(ctx, "CASE-404"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown case detail: %v", err)
	}
}

func TestCaseAgeDays(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c := models.Case{CreatedAt: now.Add(-10 * 24 * time.Hour)}
	if got := CaseAgeDays(c, now); got != 10 {
		t.Fatalf("age = %d, want 10", got)
	}
}
