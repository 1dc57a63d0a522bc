package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/hashchain"
	"github.com/dnafasttrack/custody-server/internal/metrics"
	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/store"
)

// LedgerService appends custody events and verifies per-case chains.
// Serialization of concurrent appends is delegated to the store's
// AppendEvent critical section; the ledger only computes hashes.
type LedgerService struct {
	store  store.Store
	logger *zap.SugaredLogger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(st store.Store, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{store: st, logger: logger}
}

// TipHash returns the hash of the case's most recent event in append order,
// or the empty string for a case with no events.
func (s *LedgerService) TipHash(ctx context.Context, caseNumber string) (string, error) {
	events, err := s.store.EventsByCase(ctx, caseNumber)
	if err != nil {
		return "", fmt.Errorf("read chain: %w", err)
	}
	if len(events) == 0 {
		return "", nil
	}
	return events[len(events)-1].Hash, nil
}

// Append extends the case's chain with one event. The event's prev_hash and
// sequence come from the chain tip read inside the store's critical section,
// the timestamp is assigned here at append time, and the hash covers
// (prev_hash, actor, action, note, timestamp). The timestamp is truncated to
// microseconds: postgres TIMESTAMPTZ drops nanoseconds, and a timestamp that
// does not survive the storage round trip would break its own hash.
func (s *LedgerService) Append(ctx context.Context, caseNumber, sampleCode, actor, action, note string) (*models.CustodyEvent, error) {
	if caseNumber == "" {
		return nil, &ValidationError{Field: "case_number", Reason: "must not be empty"}
	}
	if action == "" {
		return nil, &ValidationError{Field: "action", Reason: "must not be empty"}
	}

	ev, err := s.store.AppendEvent(ctx, caseNumber, func(prevHash string, seq int64) (models.CustodyEvent, error) {
		e := models.CustodyEvent{
			CaseNumber: caseNumber,
			SampleCode: sampleCode,
			Seq:        seq,
			Actor:      actor,
			Action:     action,
			RecordedAt: time.Now().UTC().Truncate(time.Microsecond),
			Note:       note,
			PrevHash:   prevHash,
		}
		e.Hash = hashchain.EventHash(e)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("append custody event: %w", err)
	}

	metrics.CustodyAppends.Inc()
	s.logger.Infow("Custody event appended",
		"case_number", caseNumber,
		"action", action,
		"actor", actor,
		"seq", ev.Seq,
	)
	return ev, nil
}

// Verify recomputes the case's chain and reports the first divergence:
// a hash that does not match its recomputed value, or a prev_hash that does
// not equal the predecessor's stored hash.
func (s *LedgerService) Verify(ctx context.Context, caseNumber string) (models.VerificationResult, error) {
	events, err := s.store.EventsByCase(ctx, caseNumber)
	if err != nil {
		return models.VerificationResult{}, fmt.Errorf("read chain: %w", err)
	}

	res := hashchain.VerifyEvents(caseNumber, events)
	if res.Valid {
		metrics.ChainVerifications.WithLabelValues("valid").Inc()
	} else {
		metrics.ChainVerifications.WithLabelValues("broken").Inc()
		s.logger.Warnw("Custody chain broken",
			"case_number", caseNumber,
			"break_at", *res.BreakAt,
		)
	}
	return res, nil
}
