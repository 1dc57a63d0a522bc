package services

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/store"
)

func TestAuditorSweepCleanStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	logger := zap.NewNop().Sugar()
	ledger := NewLedgerService(st, logger)
	cw := NewCaseworkService(st, ledger, NewPriorityService(), logger)
	auditor := NewChainAuditor(st, ledger, logger)

	for _, n := range []string{"CASE-001", "CASE-002"} {
		if _, err := cw.CreateCase(ctx, models.CreateCaseRequest{CaseNumber: n, OffenceType: "assault"}, "officer"); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
		if _, err := cw.ChangeStatus(ctx, n, "submitted_to_lab", "officer"); err != nil {
			t.Fatalf("status %s: %v", n, err)
		}
	}

	if broken := auditor.Sweep(ctx); broken != 0 {
		t.Fatalf("clean store reported %d broken chains", broken)
	}
}
