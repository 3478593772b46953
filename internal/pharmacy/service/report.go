package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// ExpiringSoonWindow is how far ahead a line item counts as expiring soon
const ExpiringSoonWindow = 10 * 24 * time.Hour

// Trend granularities
const (
	GranularityWeek  = "week"
	GranularityMonth = "month"
)

// ReportService computes read-only cross-batch aggregations. Every
// report loads finalized batches and active medicines inside one
// repeatable-read snapshot, then derives its numbers in a single pass,
// so the figures within a response are mutually consistent.
type ReportService struct {
	db           *database.DB
	batchRepo    *repository.BatchRepository
	medicineRepo *repository.MedicineRepository
	logger       *logger.Logger
}

// NewReportService creates a new report service
func NewReportService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	medicineRepo *repository.MedicineRepository,
	log *logger.Logger,
) *ReportService {
	return &ReportService{
		db:           db,
		batchRepo:    batchRepo,
		medicineRepo: medicineRepo,
		logger:       log,
	}
}

// LowStockMedicine is one medicine flagged below its reorder level
type LowStockMedicine struct {
	MedicineID    int64  `json:"medicine_id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	TotalQuantity int    `json:"total_quantity"`
	ReorderLevel  int    `json:"reorder_level"`
}

// LowStockReport lists every active medicine whose summed finalized
// quantity is strictly below its reorder level
type LowStockReport struct {
	Medicines []LowStockMedicine `json:"medicines"`
	Count     int                `json:"count"`
}

// ExpiryBatchRef is one batch's contribution to an expiry group
type ExpiryBatchRef struct {
	BatchNumber string     `json:"batch_number"`
	Quantity    int        `json:"quantity"`
	ExpiryDate  *time.Time `json:"expiry_date"`
}

// ExpiryGroup sums one medicine's quantity within an expiry class,
// retaining the contributing batches for drill-down
type ExpiryGroup struct {
	MedicineID    int64            `json:"medicine_id"`
	MedicineName  string           `json:"medicine_name"`
	TotalQuantity int              `json:"total_quantity"`
	Batches       []ExpiryBatchRef `json:"batches"`
}

// ExpiryReport partitions stock into already-expired and expiring-soon
// classes. Items outside both classes are not reported.
type ExpiryReport struct {
	Expired      []ExpiryGroup `json:"expired"`
	ExpiringSoon []ExpiryGroup `json:"expiring_soon"`
}

// DashboardStats is the dashboard summary, computed from one snapshot
type DashboardStats struct {
	LowStock       int     `json:"low_stock"`
	NearExpiry     int     `json:"near_expiry"`
	AlreadyExpired int     `json:"already_expired"`
	StockValue     float64 `json:"stock_value"`
}

// TrendPoint is one time bucket of a trend series
type TrendPoint struct {
	Bucket   string `json:"bucket"`
	Quantity int    `json:"quantity"`
}

// snapshot is the consistent point-in-time state reports compute over
type snapshot struct {
	medicines []*repository.Medicine
	batches   []*repository.Batch
}

func (s *ReportService) loadSnapshot(ctx context.Context) (*snapshot, error) {
	var snap snapshot
	err := s.db.Snapshot(ctx, func(tx *sqlx.Tx) error {
		var err error
		if snap.medicines, err = s.medicineRepo.GetAllActiveTx(ctx, tx); err != nil {
			return err
		}
		snap.batches, err = s.batchRepo.ListFinalizedWithItemsTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// LowStock reports every active medicine below its reorder level.
// Medicines with no finalized stock at all are included unless their
// reorder level is zero.
func (s *ReportService) LowStock(ctx context.Context) (*LowStockReport, error) {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return computeLowStock(snap.medicines, snap.batches), nil
}

// Expiry reports expired and expiring-soon stock grouped by medicine
func (s *ReportService) Expiry(ctx context.Context) (*ExpiryReport, error) {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return computeExpiry(snap.batches, time.Now()), nil
}

// Dashboard reports the four summary figures from one snapshot
func (s *ReportService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return computeDashboard(snap.medicines, snap.batches, time.Now()), nil
}

// Trend buckets finalized batches by creation week or month and reports
// quantity added per bucket
func (s *ReportService) Trend(ctx context.Context, granularity string) ([]TrendPoint, error) {
	if granularity != GranularityWeek && granularity != GranularityMonth {
		return nil, errors.Validation(map[string]string{"granularity": "must be week or month"})
	}

	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return computeTrend(snap.batches, granularity, time.Now()), nil
}

// computeLowStock sums each active medicine's finalized quantity and
// flags those strictly below their reorder level
func computeLowStock(medicines []*repository.Medicine, batches []*repository.Batch) *LowStockReport {
	totals := make(map[int64]int)
	for _, batch := range batches {
		for _, item := range batch.LineItems {
			totals[item.MedicineID] += item.Quantity
		}
	}

	report := &LowStockReport{Medicines: []LowStockMedicine{}}
	for _, m := range medicines {
		total := totals[m.ID]
		if total < m.ReorderLevel {
			report.Medicines = append(report.Medicines, LowStockMedicine{
				MedicineID:    m.ID,
				Name:          m.Name,
				Category:      m.Category,
				TotalQuantity: total,
				ReorderLevel:  m.ReorderLevel,
			})
		}
	}
	report.Count = len(report.Medicines)

	return report
}

// expiryClass returns -1 for expired, 0 for expiring soon, 1 for ok
func expiryClass(expiry *time.Time, now time.Time) int {
	if expiry == nil {
		return 1
	}
	if expiry.Before(now) {
		return -1
	}
	if expiry.Before(now.Add(ExpiringSoonWindow)) {
		return 0
	}
	return 1
}

// computeExpiry partitions line items with remaining quantity into the
// expired and expiring-soon classes, grouped by medicine
func computeExpiry(batches []*repository.Batch, now time.Time) *ExpiryReport {
	expired := make(map[int64]*ExpiryGroup)
	expiringSoon := make(map[int64]*ExpiryGroup)

	for _, batch := range batches {
		for _, item := range batch.LineItems {
			if item.Quantity <= 0 {
				continue
			}

			var groups map[int64]*ExpiryGroup
			switch expiryClass(item.ExpiryDate, now) {
			case -1:
				groups = expired
			case 0:
				groups = expiringSoon
			default:
				continue
			}

			group, ok := groups[item.MedicineID]
			if !ok {
				group = &ExpiryGroup{
					MedicineID:   item.MedicineID,
					MedicineName: item.MedicineName,
				}
				groups[item.MedicineID] = group
			}
			group.TotalQuantity += item.Quantity
			group.Batches = append(group.Batches, ExpiryBatchRef{
				BatchNumber: batch.BatchNumber,
				Quantity:    item.Quantity,
				ExpiryDate:  item.ExpiryDate,
			})
		}
	}

	return &ExpiryReport{
		Expired:      sortGroups(expired),
		ExpiringSoon: sortGroups(expiringSoon),
	}
}

func sortGroups(groups map[int64]*ExpiryGroup) []ExpiryGroup {
	result := make([]ExpiryGroup, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MedicineID < result[j].MedicineID
	})
	return result
}

// computeDashboard derives all four dashboard figures in one pass over
// the snapshot, so they are mutually consistent
func computeDashboard(medicines []*repository.Medicine, batches []*repository.Batch, now time.Time) *DashboardStats {
	totals := make(map[int64]int)
	nearExpiry := make(map[int64]bool)
	alreadyExpired := make(map[int64]bool)
	var stockValue float64

	for _, batch := range batches {
		for _, item := range batch.LineItems {
			totals[item.MedicineID] += item.Quantity
			stockValue += float64(item.Quantity) * item.Price

			if item.Quantity <= 0 {
				continue
			}
			switch expiryClass(item.ExpiryDate, now) {
			case -1:
				alreadyExpired[item.MedicineID] = true
			case 0:
				nearExpiry[item.MedicineID] = true
			}
		}
	}

	lowStock := 0
	for _, m := range medicines {
		if totals[m.ID] < m.ReorderLevel {
			lowStock++
		}
	}

	return &DashboardStats{
		LowStock:       lowStock,
		NearExpiry:     len(nearExpiry),
		AlreadyExpired: len(alreadyExpired),
		StockValue:     stockValue,
	}
}

// computeTrend buckets finalized batches by creation time and reports
// quantity added per bucket. Buckets run contiguously from the earliest
// batch through now; empty buckets report zero so chart consumers see a
// continuous axis.
func computeTrend(batches []*repository.Batch, granularity string, now time.Time) []TrendPoint {
	if len(batches) == 0 {
		return []TrendPoint{}
	}

	earliest := batches[0].CreatedAt
	for _, b := range batches {
		if b.CreatedAt.Before(earliest) {
			earliest = b.CreatedAt
		}
	}

	quantities := make(map[string]int)
	for _, b := range batches {
		key := bucketKey(b.CreatedAt, granularity)
		for _, item := range b.LineItems {
			quantities[key] += item.Quantity
		}
	}

	var points []TrendPoint
	for cursor := bucketStart(earliest, granularity); !cursor.After(now); cursor = nextBucket(cursor, granularity) {
		key := bucketKey(cursor, granularity)
		points = append(points, TrendPoint{Bucket: key, Quantity: quantities[key]})
	}

	return points
}

func bucketKey(t time.Time, granularity string) string {
	if granularity == GranularityWeek {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return t.Format("2006-01")
}

// bucketStart truncates a time to the start of its bucket
func bucketStart(t time.Time, granularity string) time.Time {
	if granularity == GranularityWeek {
		// Back up to Monday
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		day := t.AddDate(0, 0, -(weekday - 1))
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func nextBucket(t time.Time, granularity string) time.Time {
	if granularity == GranularityWeek {
		return t.AddDate(0, 0, 7)
	}
	return t.AddDate(0, 1, 0)
}
