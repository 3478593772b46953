package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// BatchHandler handles batch lifecycle endpoints
type BatchHandler struct {
	service *service.BatchService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.BatchService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

type lineItemRequest struct {
	MedicineID     int64      `json:"medicine_id" validate:"required,gt=0"`
	Quantity       int        `json:"quantity" validate:"gte=0"`
	Price          float64    `json:"price" validate:"gte=0"`
	ExpiryDate     *time.Time `json:"expiry_date"`
	DateOfPurchase *time.Time `json:"date_of_purchase"`
}

type createBatchRequest struct {
	BatchNumber         string            `json:"batch_number" validate:"required,max=100"`
	BillID              string            `json:"bill_id" validate:"max=100"`
	MiscellaneousAmount float64           `json:"miscellaneous_amount" validate:"gte=0"`
	DraftNote           string            `json:"draft_note"`
	Attachments         []string          `json:"attachments"`
	LineItems           []lineItemRequest `json:"line_items" validate:"dive"`
}

type updateBatchRequest struct {
	BillID              *string           `json:"bill_id"`
	MiscellaneousAmount *float64          `json:"miscellaneous_amount" validate:"omitempty,gte=0"`
	DraftNote           *string           `json:"draft_note"`
	Attachments         []string          `json:"attachments"`
	LineItems           []lineItemRequest `json:"line_items" validate:"omitempty,dive"`
	ExpectedVersion     *int              `json:"expected_version" validate:"omitempty,gte=1"`
}

// Create creates a new draft batch
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	input := service.CreateDraftInput{
		BatchNumber:         req.BatchNumber,
		BillID:              req.BillID,
		MiscellaneousAmount: req.MiscellaneousAmount,
		DraftNote:           req.DraftNote,
		Attachments:         req.Attachments,
		LineItems:           toLineItemInputs(req.LineItems),
	}

	batch, err := h.service.CreateDraft(r.Context(), input, actor.MustFromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// Finalize transitions a draft batch to finalized
func (h *BatchHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.Finalize(r.Context(), id, actor.MustFromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// Update applies a partial replacement to a batch
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	input := service.UpdateBatchInput{
		BillID:              req.BillID,
		MiscellaneousAmount: req.MiscellaneousAmount,
		DraftNote:           req.DraftNote,
		Attachments:         req.Attachments,
		ExpectedVersion:     req.ExpectedVersion,
	}
	if req.LineItems != nil {
		input.LineItems = toLineItemInputs(req.LineItems)
	}

	batch, err := h.service.Update(r.Context(), id, input, actor.MustFromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// Delete deletes a batch
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id, actor.MustFromContext(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// GetByBatchNumber gets a batch by its batch number
func (h *BatchHandler) GetByBatchNumber(w http.ResponseWriter, r *http.Request) {
	batchNumber := chi.URLParam(r, "batchNumber")

	batch, err := h.service.GetByBatchNumber(r.Context(), batchNumber)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// List lists batches
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.BatchFilter{Page: page, PerPage: perPage}
	switch r.URL.Query().Get("is_draft") {
	case "true":
		v := true
		filter.IsDraft = &v
	case "false":
		v := false
		filter.IsDraft = &v
	}

	batches, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, batches, paginationMeta(page, perPage, total))
}

func toLineItemInputs(items []lineItemRequest) []service.LineItemInput {
	inputs := make([]service.LineItemInput, len(items))
	for i, item := range items {
		inputs[i] = service.LineItemInput{
			MedicineID:     item.MedicineID,
			Quantity:       item.Quantity,
			Price:          item.Price,
			ExpiryDate:     item.ExpiryDate,
			DateOfPurchase: item.DateOfPurchase,
		}
	}
	return inputs
}
