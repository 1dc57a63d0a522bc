package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/store"
)

// CaseworkService orchestrates case workflow actions. Every auditable
// action persists its store mutation first and then appends exactly one
// custody event, so a reader never sees a ledger event for state the case
// record does not yet reflect.
type CaseworkService struct {
	store    store.Store
	ledger   *LedgerService
	priority *PriorityService
	logger   *zap.SugaredLogger
}

// NewCaseworkService creates a new case workflow service.
func NewCaseworkService(st store.Store, ledger *LedgerService, priority *PriorityService, logger *zap.SugaredLogger) *CaseworkService {
	return &CaseworkService{store: st, ledger: ledger, priority: priority, logger: logger}
}

// CreateCase persists a new case, a default sealed sample with a code
// derived from the case's assigned id, and the chain's first custody event.
// If the sample or event step fails after the case row persisted, the error
// is a PersistenceError naming the case; the partial state is left for
// operator repair rather than silently reported as success.
func (s *CaseworkService) CreateCase(ctx context.Context, req models.CreateCaseRequest, actor string) (*models.CreateCaseResponse, error) {
	if req.CaseNumber == "" {
		return nil, &ValidationError{Field: "case_number", Reason: "must not be empty"}
	}
	if req.OffenceType == "" {
		return nil, &ValidationError{Field: "offence_type", Reason: "must not be empty"}
	}

	c := models.Case{
		CaseNumber:    req.CaseNumber,
		OffenceType:   req.OffenceType,
		Description:   req.Description,
		PriorityScore: s.priority.Score(req.OffenceType, 0, req.SuspectInCustody),
		Status:        "created",
		CreatedBy:     actor,
	}
	if err := s.store.CreateCase(ctx, &c); err != nil {
		if err := mapDuplicate(err, "case_number"); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("create case: %w", err)
	}

	code := fmt.Sprintf("S-%06d-A", c.ID)
	sample := models.Sample{
		CaseNumber: c.CaseNumber,
		Code:       code,
		QRPath:     fmt.Sprintf("qrcodes/%s.png", code),
		Status:     "sealed",
	}
	if err := s.store.CreateSample(ctx, &sample); err != nil {
		return nil, &PersistenceError{Op: "create default sample", CaseNumber: c.CaseNumber, Err: err}
	}

	ev, err := s.ledger.Append(ctx, c.CaseNumber, code, actor, models.ActionCreatedCase, "Case and sample created")
	if err != nil {
		return nil, &PersistenceError{Op: "append created_case event", CaseNumber: c.CaseNumber, Err: err}
	}

	s.logger.Infow("Case created",
		"case_number", c.CaseNumber,
		"offence_type", c.OffenceType,
		"priority", c.PriorityScore,
		"created_by", actor,
	)
	return &models.CreateCaseResponse{Case: c, Sample: sample, Event: *ev}, nil
}

// ChangeStatus updates the case's status and appends a "status:<value>"
// custody event. Not idempotent: repeating a status appends another event.
func (s *CaseworkService) ChangeStatus(ctx context.Context, caseNumber, newStatus, actor string) (*models.CustodyEvent, error) {
	if newStatus == "" {
		return nil, &ValidationError{Field: "status", Reason: "must not be empty"}
	}

	if err := s.store.UpdateCaseStatus(ctx, caseNumber, newStatus, nil); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	ev, err := s.ledger.Append(ctx, caseNumber, "", actor, models.StatusAction(newStatus), "")
	if err != nil {
		return nil, &PersistenceError{Op: "append status event", CaseNumber: caseNumber, Err: err}
	}
	return ev, nil
}

// AddSample registers an additional evidence sample against an existing
// case and records a custody event for it.
func (s *CaseworkService) AddSample(ctx context.Context, caseNumber, code, actor, note string) (*models.Sample, *models.CustodyEvent, error) {
	if code == "" {
		return nil, nil, &ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if _, err := s.store.FindCase(ctx, caseNumber); err != nil {
		return nil, nil, err
	}

	sample := models.Sample{
		CaseNumber: caseNumber,
		Code:       code,
		QRPath:     fmt.Sprintf("qrcodes/%s.png", code),
		Status:     "sealed",
	}
	if err := s.store.CreateSample(ctx, &sample); err != nil {
		if err := mapDuplicate(err, "code"); err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("create sample: %w", err)
	}

	ev, err := s.ledger.Append(ctx, caseNumber, code, actor, "sample_added", note)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "append sample event", CaseNumber: caseNumber, Err: err}
	}
	return &sample, ev, nil
}

// ReceiveByLab marks the case received by a partner lab: status in_lab,
// lab_assigned set to the lab actor, one received_by_lab event.
func (s *CaseworkService) ReceiveByLab(ctx context.Context, caseNumber, labActor string) (*models.CustodyEvent, error) {
	if _, err := s.store.FindCase(ctx, caseNumber); err != nil {
		return nil, err
	}

	if err := s.store.UpdateCaseStatus(ctx, caseNumber, "in_lab", &labActor); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	ev, err := s.ledger.Append(ctx, caseNumber, "", labActor, models.ActionReceivedByLab, "Received via API")
	if err != nil {
		return nil, &PersistenceError{Op: "append received_by_lab event", CaseNumber: caseNumber, Err: err}
	}
	return ev, nil
}

// CompleteByLab marks the case completed, files the lab result and appends
// one completed_by_lab event. Completion is refused when the case's custody
// chain no longer verifies; results must not be filed on tampered evidence.
func (s *CaseworkService) CompleteByLab(ctx context.Context, caseNumber, labActor string, req models.CompleteRequest) (*models.CustodyEvent, error) {
	if _, err := s.store.FindCase(ctx, caseNumber); err != nil {
		return nil, err
	}

	verification, err := s.ledger.Verify(ctx, caseNumber)
	if err != nil {
		return nil, err
	}
	if !verification.Valid {
		return nil, &IntegrityError{CaseNumber: caseNumber, BreakAt: *verification.BreakAt}
	}

	if err := s.store.UpdateCaseStatus(ctx, caseNumber, "completed", nil); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	result := models.LabResult{
		CaseNumber:    caseNumber,
		LabUser:       labActor,
		ResultSummary: req.ResultSummary,
		ResultFile:    req.ResultFile,
	}
	if err := s.store.CreateLabResult(ctx, &result); err != nil {
		return nil, &PersistenceError{Op: "create lab result", CaseNumber: caseNumber, Err: err}
	}

	ev, err := s.ledger.Append(ctx, caseNumber, "", labActor, models.ActionCompletedByLab, "Completed via API")
	if err != nil {
		return nil, &PersistenceError{Op: "append completed_by_lab event", CaseNumber: caseNumber, Err: err}
	}
	return ev, nil
}

// CaseDetail returns a case with its samples, custody chain and lab results.
// Readers run outside the append critical section and may observe a store
// between two dependent writes; the chain itself stays internally linked.
func (s *CaseworkService) CaseDetail(ctx context.Context, caseNumber string) (*models.CaseDetail, error) {
	c, err := s.store.FindCase(ctx, caseNumber)
	if err != nil {
		return nil, err
	}
	samples, err := s.store.SamplesByCase(ctx, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	events, err := s.store.EventsByCase(ctx, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	results, err := s.store.LabResultsByCase(ctx, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}

	return &models.CaseDetail{Case: *c, Samples: samples, Events: events, LabResults: results}, nil
}

// Dashboard lists cases ordered by priority score refreshed for case age:
// the stored score was computed at filing with age zero, so the age bonus is
// applied here and the list re-sorted before the display cap.
func (s *CaseworkService) Dashboard(ctx context.Context, limit int) ([]models.Case, error) {
	cases, err := s.store.ListCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}

	now := time.Now().UTC()
	for i := range cases {
		cases[i].PriorityScore += s.priority.AgeBonus(CaseAgeDays(cases[i], now))
	}
	sort.SliceStable(cases, func(i, j int) bool {
		return cases[i].PriorityScore > cases[j].PriorityScore
	})

	if limit > 0 && len(cases) > limit {
		cases = cases[:limit]
	}
	return cases, nil
}

// CaseAgeDays reports how long a case has been open.
func CaseAgeDays(c models.Case, now time.Time) int {
	return int(now.Sub(c.CreatedAt).Hours() / 24)
}

func mapDuplicate(err error, field string) error {
	if errors.Is(err, store.ErrDuplicate) {
		return &ValidationError{Field: field, Reason: "already exists"}
	}
	return nil
}
