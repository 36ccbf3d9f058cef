package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// AvailabilityCache holds display snapshots. It is advisory: the booking path never reads it.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, scheduleID string) (*models.Availability, bool, error)
	SetAvailability(ctx context.Context, availability *models.Availability) error
}

// AvailabilityService answers "which seats are free" for display.
// Results are best effort and may be stale by the time the client acts on them.
type AvailabilityService struct {
	capacity CapacityStore
	ledger   SeatLedger
	cache    AvailabilityCache
	logger   *logrus.Logger
}

// NewAvailabilityService creates a new AvailabilityService; cache may be nil
func NewAvailabilityService(capacity CapacityStore, ledger SeatLedger, cache AvailabilityCache, logger *logrus.Logger) *AvailabilityService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AvailabilityService{
		capacity: capacity,
		ledger:   ledger,
		cache:    cache,
		logger:   logger,
	}
}

// GetAvailability returns the seat counter and booked seat ids for a schedule
func (s *AvailabilityService) GetAvailability(ctx context.Context, scheduleID string) (*models.Availability, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetAvailability(ctx, scheduleID)
		if err != nil {
			s.logger.WithError(err).WithField("schedule_id", scheduleID).Debug("Availability cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	capacity, err := s.capacity.GetCapacity(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	booked, err := s.ledger.BookedSeats(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	availability := &models.Availability{
		ScheduleID:     scheduleID,
		TotalSeats:     capacity.TotalSeats,
		AvailableCount: capacity.AvailableSeats,
		BookedSeatIDs:  booked,
		AsOf:           time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, availability); err != nil {
			s.logger.WithError(err).WithField("schedule_id", scheduleID).Debug("Availability cache write failed")
		}
	}

	return availability, nil
}
