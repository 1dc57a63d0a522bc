package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/metrics"
	"github.com/dnafasttrack/custody-server/internal/store"
)

// ChainAuditor periodically verifies every case's custody chain in the
// background and surfaces breaks through logs and the broken-chain gauge.
// It never repairs anything; a broken chain is evidence, not a fault to fix.
type ChainAuditor struct {
	store  store.Store
	ledger *LedgerService
	logger *zap.SugaredLogger
}

// NewChainAuditor creates a new background chain auditor.
func NewChainAuditor(st store.Store, ledger *LedgerService, logger *zap.SugaredLogger) *ChainAuditor {
	return &ChainAuditor{store: st, ledger: ledger, logger: logger}
}

// Start begins the periodic audit loop. Blocks until ctx is cancelled.
func (a *ChainAuditor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial sweep
	a.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Chain auditor stopped")
			return
		case <-ticker.C:
			a.Sweep(ctx)
		}
	}
}

// Sweep verifies all case chains once and returns the number of broken ones.
func (a *ChainAuditor) Sweep(ctx context.Context) int {
	cases, err := a.store.ListCases(ctx)
	if err != nil {
		a.logger.Errorw("Audit sweep failed to list cases", "error", err)
		return 0
	}

	broken := 0
	for _, c := range cases {
		res, err := a.ledger.Verify(ctx, c.CaseNumber)
		if err != nil {
			a.logger.Errorw("Audit verification failed",
				"case_number", c.CaseNumber, "error", err)
			continue
		}
		if !res.Valid {
			broken++
			a.logger.Errorw("Audit found broken custody chain",
				"case_number", c.CaseNumber,
				"break_at", *res.BreakAt,
			)
		}
	}

	metrics.BrokenChains.Set(float64(broken))
	a.logger.Infow("Audit sweep complete", "cases", len(cases), "broken", broken)
	return broken
}
