package handler

import (
	"net/http"
	"strconv"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// DiscardHandler handles discard workflow endpoints
type DiscardHandler struct {
	service *service.DiscardService
	logger  *logger.Logger
}

// NewDiscardHandler creates a new discard handler
func NewDiscardHandler(svc *service.DiscardService, log *logger.Logger) *DiscardHandler {
	return &DiscardHandler{
		service: svc,
		logger:  log,
	}
}

type discardRequest struct {
	MedicineID   int64  `json:"medicine_id" validate:"required,gt=0"`
	Quantity     int    `json:"quantity" validate:"required,gte=1"`
	Reason       string `json:"reason" validate:"max=255"`
	ScopeBatchID string `json:"scope_batch_id" validate:"omitempty,uuid"`
}

// Create discards stock for a medicine across finalized batches
func (h *DiscardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req discardRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	input := service.DiscardInput{
		MedicineID:   req.MedicineID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		ScopeBatchID: req.ScopeBatchID,
	}

	records, err := h.service.Discard(r.Context(), input, actor.MustFromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, records)
}

// List lists discard records
func (h *DiscardHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.DiscardFilter{Page: page, PerPage: perPage}
	if raw := r.URL.Query().Get("medicine_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.MedicineID = &id
		}
	}

	records, total, err := h.service.ListRecords(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, paginationMeta(page, perPage, total))
}
