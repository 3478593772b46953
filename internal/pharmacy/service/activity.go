package service

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
)

// ActivityService exposes the read side of the activity log. Writes
// happen only inside batch and discard transactions; there is no
// standalone write path.
type ActivityService struct {
	activityRepo *repository.ActivityLogRepository
}

// NewActivityService creates a new activity service
func NewActivityService(activityRepo *repository.ActivityLogRepository) *ActivityService {
	return &ActivityService{activityRepo: activityRepo}
}

// ListByBatchID lists entries for a batch, newest first
func (s *ActivityService) ListByBatchID(ctx context.Context, batchID string, page, perPage int) ([]*repository.ActivityEntry, int64, error) {
	return s.activityRepo.ListByBatchID(ctx, batchID, page, perPage)
}

// ListByBatchNumber lists entries for a batch number, newest first
func (s *ActivityService) ListByBatchNumber(ctx context.Context, batchNumber string, page, perPage int) ([]*repository.ActivityEntry, int64, error) {
	return s.activityRepo.ListByBatchNumber(ctx, batchNumber, page, perPage)
}

// List lists entries with an optional action filter, newest first
func (s *ActivityService) List(ctx context.Context, filter repository.ActivityFilter) ([]*repository.ActivityEntry, int64, error) {
	return s.activityRepo.List(ctx, filter)
}
