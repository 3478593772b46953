package events

import (
	"context"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/pharmstock/pharmstock-backend/pkg/messaging"
)

// PharmacyEventPublisher publishes batch lifecycle and stock events.
// All methods are nil-safe and fire-and-forget: a failed publish is
// logged, never surfaced to the caller.
type PharmacyEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a new pharmacy event publisher
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchLifecycle publishes a batch lifecycle event
func (p *PharmacyEventPublisher) PublishBatchLifecycle(ctx context.Context, eventType string, batch *repository.Batch, actorID string) {
	if p == nil {
		return
	}

	data := messaging.BatchLifecycleEvent{
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		IsDraft:     batch.IsDraft,
		ActorID:     actorID,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Str("event_type", eventType).Msg("failed to publish batch event")
	}
}

// PublishStockDiscarded publishes a stock discarded event
func (p *PharmacyEventPublisher) PublishStockDiscarded(ctx context.Context, records []*repository.DiscardRecord, actorID string) {
	if p == nil || len(records) == 0 {
		return
	}

	total := 0
	batches := make([]string, len(records))
	for i, rec := range records {
		total += rec.QuantityDiscarded
		batches[i] = rec.BatchNumber
	}

	data := messaging.StockDiscardedEvent{
		MedicineID:     records[0].MedicineID,
		MedicineName:   records[0].MedicineName,
		Quantity:       total,
		Reason:         records[0].Reason,
		BatchesTouched: batches,
		ActorID:        actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockDiscarded, data); err != nil {
		p.logger.Error().Err(err).Int64("medicine_id", data.MedicineID).Msg("failed to publish stock discarded event")
	}
}

// PublishLowStock publishes a low stock event
func (p *PharmacyEventPublisher) PublishLowStock(ctx context.Context, medicine *repository.Medicine, totalStock int) {
	if p == nil {
		return
	}

	data := messaging.LowStockEvent{
		MedicineID:   medicine.ID,
		MedicineName: medicine.Name,
		TotalStock:   totalStock,
		ReorderLevel: medicine.ReorderLevel,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLowStock, data); err != nil {
		p.logger.Error().Err(err).Int64("medicine_id", medicine.ID).Msg("failed to publish low stock event")
	}
}
