package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// InventoryCounter reports counter and ledger totals per schedule
type InventoryCounter interface {
	AuditCounts(ctx context.Context) ([]models.InventoryAuditResult, error)
}

// InventoryAuditService checks that every schedule's counter matches its booked ledger rows
type InventoryAuditService struct {
	counter InventoryCounter
	logger  *logrus.Logger
}

// NewInventoryAuditService creates a new InventoryAuditService
func NewInventoryAuditService(counter InventoryCounter, logger *logrus.Logger) *InventoryAuditService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &InventoryAuditService{counter: counter, logger: logger}
}

// Run performs one audit pass. Mismatches are logged at error level and returned;
// they are never repaired automatically.
func (s *InventoryAuditService) Run(ctx context.Context) (*models.InventoryAuditReport, error) {
	results, err := s.counter.AuditCounts(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.InventoryAuditReport{
		CheckedAt:  time.Now().UTC(),
		Schedules:  len(results),
		Mismatches: []models.InventoryAuditResult{},
	}

	for _, r := range results {
		if r.Consistent() {
			continue
		}
		report.Mismatches = append(report.Mismatches, r)
		s.logger.WithFields(logrus.Fields{
			"schedule_id":        r.ScheduleID,
			"total_seats":        r.TotalSeats,
			"available_seats":    r.AvailableSeats,
			"booked_ledger_rows": r.BookedLedgerRows,
			"duplicate_seats":    r.DuplicateSeats,
		}).Error("Seat inventory mismatch")
	}

	return report, nil
}
