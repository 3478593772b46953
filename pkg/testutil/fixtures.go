package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MedicineFixture represents test medicine catalog data
type MedicineFixture struct {
	ID           int64
	Name         string
	Category     string
	Manufacturer string
	ReorderLevel int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LineItemFixture represents test batch line-item data
type LineItemFixture struct {
	ID             string
	MedicineID     int64
	MedicineName   string
	Quantity       int
	Price          float64
	ExpiryDate     *time.Time
	DateOfPurchase *time.Time
	ReorderLevel   int
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID          string
	BatchNumber string
	BillID      string
	IsDraft     bool
	CreatedBy   string
	LineItems   []LineItemFixture
	CreatedAt   time.Time
}

// ActorFixture represents test actor data
type ActorFixture struct {
	ID   string
	Name string
	Role string
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Medicine creates a medicine fixture with defaults
func (f *FixtureFactory) Medicine(opts ...func(*MedicineFixture)) MedicineFixture {
	seq := f.nextSeq()

	m := MedicineFixture{
		Name:         fmt.Sprintf("Medicine %d", seq),
		Category:     "Analgesic",
		Manufacturer: fmt.Sprintf("Pharma Labs %d", seq),
		ReorderLevel: 10,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// WithReorderLevel sets the medicine reorder level
func WithReorderLevel(level int) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.ReorderLevel = level
	}
}

// WithCategory sets the medicine category
func WithCategory(category string) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.Category = category
	}
}

// Inactive marks the medicine inactive
func Inactive() func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.IsActive = false
	}
}

// Batch creates a batch fixture with defaults
func (f *FixtureFactory) Batch(opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()

	b := BatchFixture{
		ID:          uuid.New().String(),
		BatchNumber: fmt.Sprintf("BATCH-%04d", seq),
		BillID:      fmt.Sprintf("BILL-%04d", seq),
		IsDraft:     true,
		CreatedBy:   "test-user",
		CreatedAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// Finalized marks the batch fixture finalized
func Finalized() func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.IsDraft = false
	}
}

// WithBatchNumber sets the batch number
func WithBatchNumber(number string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.BatchNumber = number
	}
}

// WithLineItem appends a line item to the batch fixture
func WithLineItem(item LineItemFixture) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.LineItems = append(b.LineItems, item)
	}
}

// LineItem creates a line-item fixture with defaults
func (f *FixtureFactory) LineItem(medicineID int64, opts ...func(*LineItemFixture)) LineItemFixture {
	seq := f.nextSeq()
	expiry := time.Now().AddDate(1, 0, 0)

	li := LineItemFixture{
		ID:           uuid.New().String(),
		MedicineID:   medicineID,
		MedicineName: fmt.Sprintf("Medicine %d", seq),
		Quantity:     100,
		Price:        2.50,
		ExpiryDate:   &expiry,
		ReorderLevel: 10,
	}

	for _, opt := range opts {
		opt(&li)
	}

	return li
}

// WithQuantity sets the line-item quantity
func WithQuantity(qty int) func(*LineItemFixture) {
	return func(li *LineItemFixture) {
		li.Quantity = qty
	}
}

// WithExpiry sets the line-item expiry date
func WithExpiry(expiry time.Time) func(*LineItemFixture) {
	return func(li *LineItemFixture) {
		li.ExpiryDate = &expiry
	}
}

// Actor creates an actor fixture with defaults
func (f *FixtureFactory) Actor(opts ...func(*ActorFixture)) ActorFixture {
	seq := f.nextSeq()

	a := ActorFixture{
		ID:   uuid.New().String(),
		Name: fmt.Sprintf("Test Pharmacist %d", seq),
		Role: "pharmacist",
	}

	for _, opt := range opts {
		opt(&a)
	}

	return a
}
