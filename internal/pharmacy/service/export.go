package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// ExportService renders printable registers. Pharmacies hand these to
// disposal contractors and auditors, so the PDFs carry the same figures
// as the corresponding reports.
type ExportService struct {
	reports     *ReportService
	discardRepo *repository.DiscardRepository
	logger      *logger.Logger
}

// NewExportService creates a new export service
func NewExportService(reports *ReportService, discardRepo *repository.DiscardRepository, log *logger.Logger) *ExportService {
	return &ExportService{
		reports:     reports,
		discardRepo: discardRepo,
		logger:      log,
	}
}

// ExpiryRegisterPDF renders the expired and expiring-soon stock as a PDF
func (s *ExportService) ExpiryRegisterPDF(ctx context.Context) ([]byte, error) {
	report, err := s.reports.Expiry(ctx)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Expiry Register")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", time.Now().Format("2006-01-02 15:04")))
	pdf.Ln(12)

	writeExpirySection(pdf, "Expired", report.Expired)
	pdf.Ln(6)
	writeExpirySection(pdf, "Expiring within 10 days", report.ExpiringSoon)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DiscardRegisterPDF renders all discard records as a PDF
func (s *ExportService) DiscardRegisterPDF(ctx context.Context) ([]byte, error) {
	records, _, err := s.discardRepo.List(ctx, repository.DiscardFilter{Page: 1, PerPage: 1000})
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Discard Register")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s - %d records", time.Now().Format("2006-01-02 15:04"), len(records)))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 9)
	headers := []struct {
		label string
		width float64
	}{
		{"Date", 30},
		{"Medicine", 60},
		{"Batch", 40},
		{"Quantity", 25},
		{"Unit Price", 25},
		{"Total Value", 30},
		{"Reason", 40},
	}
	for _, h := range headers {
		pdf.CellFormat(h.width, 7, h.label, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, rec := range records {
		pdf.CellFormat(30, 6, rec.DiscardedAt.Format("2006-01-02"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, rec.MedicineName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, rec.BatchNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", rec.QuantityDiscarded), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", rec.PricePerUnit), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", rec.TotalValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, rec.Reason, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeExpirySection(pdf *fpdf.Fpdf, title string, groups []ExpiryGroup) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("%s (%d medicines)", title, len(groups)))
	pdf.Ln(8)

	if len(groups) == 0 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.Cell(0, 6, "No stock in this class")
		pdf.Ln(6)
		return
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(70, 7, "Medicine", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 7, "Total Qty", "1", 0, "R", false, 0, "")
	pdf.CellFormat(50, 7, "Batch", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Expiry", "1", 0, "L", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, group := range groups {
		for i, ref := range group.Batches {
			name, qty := "", ""
			if i == 0 {
				name = group.MedicineName
				qty = fmt.Sprintf("%d", group.TotalQuantity)
			}
			expiry := ""
			if ref.ExpiryDate != nil {
				expiry = ref.ExpiryDate.Format("2006-01-02")
			}
			pdf.CellFormat(70, 6, name, "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, qty, "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%s (%d)", ref.BatchNumber, ref.Quantity), "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, expiry, "1", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
	}
}
