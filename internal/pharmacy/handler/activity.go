package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// ActivityHandler handles activity log read endpoints. The log has no
// write endpoint: entries are only created inside mutation transactions.
type ActivityHandler struct {
	service *service.ActivityService
	logger  *logger.Logger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(svc *service.ActivityService, log *logger.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: svc,
		logger:  log,
	}
}

// List lists activity entries, newest first
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.ActivityFilter{
		Action:  r.URL.Query().Get("action"),
		Page:    page,
		PerPage: perPage,
	}

	entries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, paginationMeta(page, perPage, total))
}

// ListByBatch lists entries for a batch ID, newest first
func (h *ActivityHandler) ListByBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, perPage := pagination(r)

	entries, total, err := h.service.ListByBatchID(r.Context(), id, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, paginationMeta(page, perPage, total))
}

// ListByBatchNumber lists entries for a batch number, newest first
func (h *ActivityHandler) ListByBatchNumber(w http.ResponseWriter, r *http.Request) {
	batchNumber := chi.URLParam(r, "number")
	page, perPage := pagination(r)

	entries, total, err := h.service.ListByBatchNumber(r.Context(), batchNumber, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, paginationMeta(page, perPage, total))
}
