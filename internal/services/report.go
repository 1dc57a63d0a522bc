package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/phpdave11/gofpdf"
	"go.uber.org/zap"
)

// ReportService renders downloadable PDF case reports: case header, samples,
// the full custody chain and any lab results, plus the chain verification
// outcome so a printed report states whether the ledger was intact when it
// was generated.
type ReportService struct {
	casework *CaseworkService
	ledger   *LedgerService
	logger   *zap.SugaredLogger
}

// NewReportService creates a new report service.
func NewReportService(cw *CaseworkService, ledger *LedgerService, logger *zap.SugaredLogger) *ReportService {
	return &ReportService{casework: cw, ledger: ledger, logger: logger}
}

// CasePDF renders the case report and returns the PDF bytes.
func (s *ReportService) CasePDF(ctx context.Context, caseNumber string) ([]byte, error) {
	detail, err := s.casework.CaseDetail(ctx, caseNumber)
	if err != nil {
		return nil, err
	}
	verification, err := s.ledger.Verify(ctx, caseNumber)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Case Report %s", caseNumber), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, fmt.Sprintf("DNA FastTrack - Case Report: %s", caseNumber), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Offence: %s", detail.Case.OffenceType), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Status: %s", detail.Case.Status), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Priority: %d", detail.Case.PriorityScore), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Created: %s by %s",
		detail.Case.CreatedAt.Format("2006-01-02 15:04:05 UTC"), detail.Case.CreatedBy), "", 1, "L", false, 0, "")

	chainState := "INTACT"
	if !verification.Valid {
		chainState = fmt.Sprintf("BROKEN at event %d", *verification.BreakAt)
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Custody chain: %s (%d events)", chainState, verification.Events), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Samples", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if len(detail.Samples) == 0 {
		pdf.CellFormat(0, 5, "(none)", "", 1, "L", false, 0, "")
	}
	for _, sm := range detail.Samples {
		pdf.CellFormat(0, 5, fmt.Sprintf("%s  |  %s  |  registered %s",
			sm.Code, sm.Status, sm.CreatedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Chain of Custody", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, ev := range detail.Events {
		line := fmt.Sprintf("#%d  %s  %s  %s", ev.Seq,
			ev.RecordedAt.Format("2006-01-02 15:04:05"), ev.Actor, ev.Action)
		if ev.Note != "" {
			line += "  -  " + ev.Note
		}
		pdf.CellFormat(0, 5, truncate(line, 120), "", 1, "L", false, 0, "")
	}

	if len(detail.LabResults) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, "Lab Results", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, r := range detail.LabResults {
			line := fmt.Sprintf("%s  %s  -  %s",
				r.CreatedAt.Format("2006-01-02 15:04"), r.LabUser, r.ResultSummary)
			pdf.CellFormat(0, 5, truncate(line, 120), "", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	s.logger.Infow("Case report generated", "case_number", caseNumber, "bytes", buf.Len())
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
