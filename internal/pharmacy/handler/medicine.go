package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// MedicineHandler handles medicine catalog endpoints
type MedicineHandler struct {
	service *service.MedicineService
	logger  *logger.Logger
}

// NewMedicineHandler creates a new medicine handler
func NewMedicineHandler(svc *service.MedicineService, log *logger.Logger) *MedicineHandler {
	return &MedicineHandler{
		service: svc,
		logger:  log,
	}
}

type medicineRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	Category     string `json:"category" validate:"max=100"`
	Manufacturer string `json:"manufacturer" validate:"max=255"`
	ReorderLevel int    `json:"reorder_level" validate:"gte=0"`
}

// Create creates a new catalog entry
func (h *MedicineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req medicineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	medicine := &repository.Medicine{
		Name:         req.Name,
		Category:     req.Category,
		Manufacturer: req.Manufacturer,
		ReorderLevel: req.ReorderLevel,
	}

	if err := h.service.Create(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, medicine)
}

// Get gets a medicine by ID
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := medicineID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	medicine, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// Update updates a catalog entry
func (h *MedicineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := medicineID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req medicineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	medicine, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	medicine.Name = req.Name
	medicine.Category = req.Category
	medicine.Manufacturer = req.Manufacturer
	medicine.ReorderLevel = req.ReorderLevel

	if err := h.service.Update(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// Deactivate marks a medicine inactive
func (h *MedicineHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := medicineID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// List lists medicines
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	category := r.URL.Query().Get("category")
	activeOnly := r.URL.Query().Get("active") == "true"

	medicines, total, err := h.service.List(r.Context(), page, perPage, category, activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, medicines, paginationMeta(page, perPage, total))
}

func medicineID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errors.BadRequest("invalid medicine id")
	}
	return id, nil
}

func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return page, perPage
}

func paginationMeta(page, perPage int, total int64) *httputil.Meta {
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	return &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}
