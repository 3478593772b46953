package handler

import (
	"net/http"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// ReportHandler handles aggregation report endpoints
type ReportHandler struct {
	service *service.ReportService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// LowStock reports medicines below their reorder level
func (h *ReportHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.LowStock(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// Expiry reports expired and expiring-soon stock
func (h *ReportHandler) Expiry(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Expiry(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// Dashboard reports the summary statistics
func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Trend reports quantity added per week or month
func (h *ReportHandler) Trend(w http.ResponseWriter, r *http.Request) {
	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = service.GranularityMonth
	}

	points, err := h.service.Trend(r.Context(), granularity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, points)
}
