package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// ExportHandler handles PDF register exports
type ExportHandler struct {
	service *service.ExportService
	logger  *logger.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(svc *service.ExportService, log *logger.Logger) *ExportHandler {
	return &ExportHandler{
		service: svc,
		logger:  log,
	}
}

// ExpiryRegister generates and serves the expiry register PDF
func (h *ExportHandler) ExpiryRegister(w http.ResponseWriter, r *http.Request) {
	pdfBytes, err := h.service.ExpiryRegisterPDF(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate expiry register PDF")
		http.Error(w, "Failed to generate PDF", http.StatusInternalServerError)
		return
	}

	servePDF(w, fmt.Sprintf("expiry-register-%s.pdf", time.Now().Format("2006-01-02")), pdfBytes)
}

// DiscardRegister generates and serves the discard register PDF
func (h *ExportHandler) DiscardRegister(w http.ResponseWriter, r *http.Request) {
	pdfBytes, err := h.service.DiscardRegisterPDF(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate discard register PDF")
		http.Error(w, "Failed to generate PDF", http.StatusInternalServerError)
		return
	}

	servePDF(w, fmt.Sprintf("discard-register-%s.pdf", time.Now().Format("2006-01-02")), pdfBytes)
}

func servePDF(w http.ResponseWriter, filename string, pdfBytes []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))
	w.Write(pdfBytes)
}
