package service

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// MedicineService handles medicine catalog business logic
type MedicineService struct {
	medicineRepo *repository.MedicineRepository
	logger       *logger.Logger
}

// NewMedicineService creates a new medicine service
func NewMedicineService(medicineRepo *repository.MedicineRepository, log *logger.Logger) *MedicineService {
	return &MedicineService{
		medicineRepo: medicineRepo,
		logger:       log,
	}
}

// Create creates a new catalog entry
func (s *MedicineService) Create(ctx context.Context, m *repository.Medicine) error {
	m.IsActive = true
	return s.medicineRepo.Create(ctx, m)
}

// Get gets a medicine by ID
func (s *MedicineService) Get(ctx context.Context, id int64) (*repository.Medicine, error) {
	return s.medicineRepo.GetByID(ctx, id)
}

// Update updates a catalog entry
func (s *MedicineService) Update(ctx context.Context, m *repository.Medicine) error {
	return s.medicineRepo.Update(ctx, m)
}

// Deactivate marks a medicine inactive. Catalog entries are never
// deleted so historical line items keep a valid reference.
func (s *MedicineService) Deactivate(ctx context.Context, id int64) error {
	s.logger.Info().Int64("medicine_id", id).Msg("medicine deactivated")
	return s.medicineRepo.Deactivate(ctx, id)
}

// List lists medicines with pagination and optional filters
func (s *MedicineService) List(ctx context.Context, page, perPage int, category string, activeOnly bool) ([]*repository.Medicine, int64, error) {
	return s.medicineRepo.List(ctx, page, perPage, category, activeOnly)
}
