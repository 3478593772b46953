package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Batch lifecycle events
	EventBatchCreated   = "pharmacy.batch.created"
	EventBatchFinalized = "pharmacy.batch.finalized"
	EventBatchUpdated   = "pharmacy.batch.updated"
	EventBatchDeleted   = "pharmacy.batch.deleted"

	// Stock events
	EventStockDiscarded = "pharmacy.stock.discarded"
	EventLowStock       = "pharmacy.stock.low"
)

// Exchange names
const (
	ExchangePharmacyEvents = "pharmacy.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// BatchLifecycleEvent is published on batch create/finalize/update/delete
type BatchLifecycleEvent struct {
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	IsDraft     bool   `json:"is_draft"`
	ActorID     string `json:"actor_id"`
}

// StockDiscardedEvent is published when expired/unwanted stock is discarded
type StockDiscardedEvent struct {
	MedicineID     int64    `json:"medicine_id"`
	MedicineName   string   `json:"medicine_name"`
	Quantity       int      `json:"quantity"`
	Reason         string   `json:"reason"`
	BatchesTouched []string `json:"batches_touched"`
	ActorID        string   `json:"actor_id"`
}

// LowStockEvent is published when a mutation drops a medicine below
// its reorder level
type LowStockEvent struct {
	MedicineID   int64  `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	TotalStock   int    `json:"total_stock"`
	ReorderLevel int    `json:"reorder_level"`
}
