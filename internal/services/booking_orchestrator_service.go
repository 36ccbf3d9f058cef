package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/pkg/validator"
)

// TxRunner runs a unit of work atomically. fn may be invoked more than once.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CapacityStore is the per-schedule seat counter
type CapacityStore interface {
	GetCapacity(ctx context.Context, scheduleID string) (*models.ScheduleCapacity, error)
	LockCapacity(ctx context.Context, scheduleID string) (*models.ScheduleCapacity, error)
	DecrementAvailable(ctx context.Context, scheduleID string, n int) (int, error)
	IncrementAvailable(ctx context.Context, scheduleID string, n int) (int, error)
	CreateSchedule(ctx context.Context, capacity *models.ScheduleCapacity) error
	DeleteSchedule(ctx context.Context, scheduleID string) error
}

// SeatLedger is the authoritative record of which seat belongs to which booking
type SeatLedger interface {
	FindConflicting(ctx context.Context, scheduleID string, seats []string) ([]string, error)
	BookSeats(ctx context.Context, scheduleID string, bookingID uuid.UUID, seats []models.SeatAssignment) error
	ReleaseSeats(ctx context.Context, bookingID uuid.UUID) (int, error)
	BookedSeats(ctx context.Context, scheduleID string) ([]string, error)
	SeatsForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.SeatLedgerEntry, error)
}

// BookingStore persists booking rows
type BookingStore interface {
	GenerateBookingReference(ctx context.Context) (string, error)
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByReference(ctx context.Context, reference string) (*models.Booking, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, update models.CancellationUpdate) error
	MarkPaid(ctx context.Context, id uuid.UUID) error
	CountActiveBySchedule(ctx context.Context, scheduleID string) (int, error)
}

// SeatEventPublisher broadcasts committed availability changes
type SeatEventPublisher interface {
	PublishSeatEvent(ctx context.Context, event models.SeatAvailabilityEvent) error
}

// BookingOrchestratorConfig holds configuration for the orchestrator
type BookingOrchestratorConfig struct {
	MaxSeatsPerBooking int           // upper bound on seats in one booking (default 20)
	EventTimeout       time.Duration // budget for publishing one seat event (default 2s)
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() BookingOrchestratorConfig {
	return BookingOrchestratorConfig{
		MaxSeatsPerBooking: 20,
		EventTimeout:       2 * time.Second,
	}
}

// BookingOrchestratorService is the only writer of seat inventory.
// Every reserve and release runs the ledger change and the counter change in one transaction.
type BookingOrchestratorService struct {
	tx        TxRunner
	capacity  CapacityStore
	ledger    SeatLedger
	bookings  BookingStore
	publisher SeatEventPublisher
	config    BookingOrchestratorConfig
	logger    *logrus.Logger
}

// NewBookingOrchestratorService creates a new orchestrator service.
// publisher may be nil, in which case no events are emitted.
func NewBookingOrchestratorService(
	tx TxRunner,
	capacity CapacityStore,
	ledger SeatLedger,
	bookings BookingStore,
	publisher SeatEventPublisher,
	config BookingOrchestratorConfig,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BookingOrchestratorService{
		tx:        tx,
		capacity:  capacity,
		ledger:    ledger,
		bookings:  bookings,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// ============================================================================
// RESERVE
// ============================================================================

// CreateBooking reserves the requested seats and creates the booking atomically.
// Either every seat is booked and the counter drops by the seat count, or nothing changes.
func (s *BookingOrchestratorService) CreateBooking(
	ctx context.Context,
	req *models.CreateBookingRequest,
	meta models.BookingMeta,
) (*models.Booking, error) {
	// 1. Validate before opening any transaction
	seats, err := s.validateBookingRequest(req)
	if err != nil {
		return nil, err
	}

	capacity, err := s.capacity.GetCapacity(ctx, req.ScheduleID)
	if err != nil {
		return nil, err
	}
	if len(seats) > capacity.TotalSeats {
		return nil, &models.ValidationError{
			Field: "seat_numbers",
			Msg:   fmt.Sprintf("schedule has only %d seats", capacity.TotalSeats),
		}
	}

	assignments := make([]models.SeatAssignment, len(seats))
	for i, seat := range seats {
		assignments[i] = models.SeatAssignment{SeatIdentifier: seat, Passenger: req.Passengers[i]}
	}

	// 2. Build the booking; its id is fixed so ledger rows can reference it before insert
	booking := s.newBooking(req, meta, len(seats))

	// 3. Lock, check, insert ledger rows, decrement counter, insert booking
	var remaining int
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.capacity.LockCapacity(txCtx, req.ScheduleID); err != nil {
			return err
		}

		conflicts, err := s.ledger.FindConflicting(txCtx, req.ScheduleID, seats)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &models.SeatConflictError{ScheduleID: req.ScheduleID, Seats: conflicts}
		}

		if err := s.ledger.BookSeats(txCtx, req.ScheduleID, booking.ID, assignments); err != nil {
			return err
		}

		remaining, err = s.capacity.DecrementAvailable(txCtx, req.ScheduleID, len(seats))
		if err != nil {
			if models.IsInsufficientCapacity(err) {
				s.logger.WithFields(logrus.Fields{
					"schedule_id": req.ScheduleID,
					"seats":       seats,
				}).WithError(err).Error("Seat ledger and capacity counter disagree")
			}
			return err
		}

		ref, err := s.bookings.GenerateBookingReference(txCtx)
		if err != nil {
			return err
		}
		booking.BookingReference = ref

		return s.bookings.Create(txCtx, booking)
	})
	if err != nil {
		if models.IsSeatConflict(err) {
			s.logger.WithFields(logrus.Fields{
				"schedule_id": req.ScheduleID,
				"seats":       seats,
			}).Info("Seat reservation rejected: seats already booked")
		}
		return nil, err
	}

	booking.Seats = make([]models.SeatLedgerEntry, len(assignments))
	for i, a := range assignments {
		booking.Seats[i] = ledgerEntryFor(booking, a)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      booking.ID,
		"reference":       booking.BookingReference,
		"schedule_id":     booking.ScheduleID,
		"seats":           seats,
		"available_seats": remaining,
	}).Info("Booking created")

	// 4. Notify listeners after commit
	s.publishAsync(models.SeatEventReserved, booking.ScheduleID, booking.ID, seats, remaining)

	return booking, nil
}

func (s *BookingOrchestratorService) validateBookingRequest(req *models.CreateBookingRequest) ([]string, error) {
	if req == nil {
		return nil, &models.ValidationError{Msg: "request body is required"}
	}
	if req.ScheduleID == "" {
		return nil, &models.ValidationError{Field: "schedule_id", Msg: "is required"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	seats, err := validator.ValidateSeatList(req.SeatNumbers)
	if err != nil {
		return nil, &models.ValidationError{Field: "seat_numbers", Msg: err.Error()}
	}
	if s.config.MaxSeatsPerBooking > 0 && len(seats) > s.config.MaxSeatsPerBooking {
		return nil, &models.ValidationError{
			Field: "seat_numbers",
			Msg:   fmt.Sprintf("at most %d seats per booking", s.config.MaxSeatsPerBooking),
		}
	}

	if req.ContactPhone != nil && *req.ContactPhone != "" {
		phone, err := validator.NormalizeContactPhone(*req.ContactPhone)
		if err != nil {
			return nil, &models.ValidationError{Field: "contact_phone", Msg: err.Error()}
		}
		req.ContactPhone = &phone
	}

	return seats, nil
}

func (s *BookingOrchestratorService) newBooking(req *models.CreateBookingRequest, meta models.BookingMeta, seatCount int) *models.Booking {
	source := meta.Source
	if source == "" {
		source = models.BookingSourceWeb
	}

	booking := &models.Booking{
		ID:             uuid.New(),
		ScheduleID:     req.ScheduleID,
		UserID:         meta.UserID,
		Status:         models.BookingStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		PassengerCount: seatCount,
		TotalAmount:    req.TotalAmount,
		DiscountAmount: req.DiscountAmount,
		FinalAmount:    req.FinalAmount(),
		ContactName:    req.ContactName,
		ContactPhone:   req.ContactPhone,
		ContactEmail:   req.ContactEmail,
		BookingSource:  source,
		DeviceInfo:     meta.DeviceInfo,
	}

	// Payment is simulated as instant unless the caller defers it
	if req.PaysImmediately() {
		now := time.Now()
		booking.Status = models.BookingStatusConfirmed
		booking.PaymentStatus = models.PaymentStatusPaid
		booking.PaidAt = &now
	}

	return booking
}

func ledgerEntryFor(booking *models.Booking, a models.SeatAssignment) models.SeatLedgerEntry {
	id := booking.ID
	entry := models.SeatLedgerEntry{
		ScheduleID:      booking.ScheduleID,
		SeatIdentifier:  a.SeatIdentifier,
		BookingID:       &id,
		Status:          models.SeatLedgerBooked,
		PassengerAge:    a.Passenger.Age,
		PassengerGender: a.Passenger.Gender,
		CreatedAt:       booking.CreatedAt,
	}
	if a.Passenger.Name != "" {
		name := a.Passenger.Name
		entry.PassengerName = &name
	}
	return entry
}

// ============================================================================
// RELEASE (cancel / refund)
// ============================================================================

// CancelBooking cancels an active booking and returns its seats to inventory
func (s *BookingOrchestratorService) CancelBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	actor *uuid.UUID,
	reason *string,
) (*models.Booking, error) {
	return s.release(ctx, bookingID, actor, reason, false)
}

// RefundBooking cancels a paid booking, records the refund and returns its seats
func (s *BookingOrchestratorService) RefundBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	actor *uuid.UUID,
	reason *string,
) (*models.Booking, error) {
	return s.release(ctx, bookingID, actor, reason, true)
}

func (s *BookingOrchestratorService) release(
	ctx context.Context,
	bookingID uuid.UUID,
	actor *uuid.UUID,
	reason *string,
	refund bool,
) (*models.Booking, error) {
	action := "cancel"
	if refund {
		action = "refund"
	}

	var (
		scheduleID string
		released   int
		available  int
	)

	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		released, available = 0, 0

		booking, err := s.bookings.LockByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		scheduleID = booking.ScheduleID

		if !booking.IsActive() {
			return &models.BookingStateError{BookingID: bookingID.String(), Status: booking.Status, Action: action}
		}
		if refund && booking.PaymentStatus != models.PaymentStatusPaid {
			return &models.BookingStateError{BookingID: bookingID.String(), Status: booking.Status, Action: action}
		}

		// Counter lock first, matching the order used by reservations
		if _, err := s.capacity.LockCapacity(txCtx, scheduleID); err != nil {
			return err
		}

		// Cancellation always lands on refunded; money moves only if it was paid
		update := models.CancellationUpdate{
			PaymentStatus: models.PaymentStatusRefunded,
			Reason:        reason,
			CancelledBy:   actor,
		}
		if booking.PaymentStatus == models.PaymentStatusPaid {
			amount := booking.FinalAmount
			update.RefundAmount = &amount
		}
		if err := s.bookings.MarkCancelled(txCtx, bookingID, update); err != nil {
			return err
		}

		released, err = s.ledger.ReleaseSeats(txCtx, bookingID)
		if err != nil {
			return err
		}
		if released != booking.PassengerCount {
			s.logger.WithFields(logrus.Fields{
				"booking_id":      bookingID,
				"passenger_count": booking.PassengerCount,
				"released":        released,
			}).Warn("Released seat count differs from booking passenger count")
		}
		if released == 0 {
			return nil
		}

		available, err = s.capacity.IncrementAvailable(txCtx, scheduleID, released)
		if err != nil {
			if models.IsCapacityOverflow(err) {
				s.logger.WithFields(logrus.Fields{
					"booking_id":  bookingID,
					"schedule_id": scheduleID,
					"released":    released,
				}).WithError(err).Error("Seat ledger and capacity counter disagree")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("booking %s released but could not be reloaded: %w", bookingID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      bookingID,
		"schedule_id":     scheduleID,
		"action":          action,
		"released_seats":  released,
		"available_seats": available,
	}).Info("Booking released")

	if released > 0 {
		changed := make([]string, 0, released)
		for _, entry := range booking.Seats {
			if entry.Status == models.SeatLedgerCancelled {
				changed = append(changed, entry.SeatIdentifier)
			}
		}
		s.publishAsync(models.SeatEventReleased, scheduleID, bookingID, changed, available)
	}

	return booking, nil
}

// ConfirmPayment moves a pending booking to confirmed/paid
func (s *BookingOrchestratorService) ConfirmPayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		booking, err := s.bookings.LockByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != models.BookingStatusPending || booking.PaymentStatus != models.PaymentStatusPending {
			return &models.BookingStateError{BookingID: bookingID.String(), Status: booking.Status, Action: "confirm payment for"}
		}
		return s.bookings.MarkPaid(txCtx, bookingID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("booking_id", bookingID).Info("Booking payment confirmed")
	return s.GetBooking(ctx, bookingID)
}

// ============================================================================
// SCHEDULE LIFECYCLE
// ============================================================================

// CreateSchedule registers capacity for a schedule with every seat available
func (s *BookingOrchestratorService) CreateSchedule(ctx context.Context, req *models.CreateScheduleRequest) (*models.ScheduleCapacity, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	capacity := req.ToCapacity()
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		return s.capacity.CreateSchedule(txCtx, capacity)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": capacity.ScheduleID,
		"total_seats": capacity.TotalSeats,
	}).Info("Schedule capacity created")
	return capacity, nil
}

// DeleteSchedule removes a schedule's capacity record; refused while any booking is not cancelled
func (s *BookingOrchestratorService) DeleteSchedule(ctx context.Context, scheduleID string) error {
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.capacity.LockCapacity(txCtx, scheduleID); err != nil {
			return err
		}

		active, err := s.bookings.CountActiveBySchedule(txCtx, scheduleID)
		if err != nil {
			return err
		}
		if active > 0 {
			return &models.ScheduleInUseError{ScheduleID: scheduleID, ActiveBookings: active}
		}

		return s.capacity.DeleteSchedule(txCtx, scheduleID)
	})
	if err != nil {
		return err
	}

	s.logger.WithField("schedule_id", scheduleID).Info("Schedule capacity deleted")
	return nil
}

// ============================================================================
// READS
// ============================================================================

// GetBooking returns a booking with its seat ledger rows
func (s *BookingOrchestratorService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.attachSeats(ctx, booking)
}

// GetBookingByReference returns a booking by PNR with its seat ledger rows
func (s *BookingOrchestratorService) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	booking, err := s.bookings.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, models.ErrEmptyReference) {
			return nil, &models.ValidationError{Field: "reference", Msg: err.Error()}
		}
		return nil, err
	}
	return s.attachSeats(ctx, booking)
}

func (s *BookingOrchestratorService) attachSeats(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	seats, err := s.ledger.SeatsForBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	booking.Seats = seats
	return booking, nil
}

// ============================================================================
// EVENTS
// ============================================================================

// publishAsync emits a seat event after commit. Failures are logged and never
// reach the caller; the booking outcome is already durable.
func (s *BookingOrchestratorService) publishAsync(kind models.SeatEventKind, scheduleID string, bookingID uuid.UUID, changed []string, available int) {
	if s.publisher == nil {
		return
	}

	timeout := s.config.EventTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("panic", r).Error("Seat event publisher panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		booked, err := s.ledger.BookedSeats(ctx, scheduleID)
		if err != nil {
			s.logger.WithError(err).WithField("schedule_id", scheduleID).Warn("Could not load booked seats for seat event")
		}

		event := models.SeatAvailabilityEvent{
			ScheduleID:     scheduleID,
			Kind:           kind,
			BookingID:      bookingID,
			ChangedSeats:   changed,
			AvailableSeats: available,
			BookedSeatIDs:  booked,
			OccurredAt:     time.Now().UTC(),
		}

		if err := s.publisher.PublishSeatEvent(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"schedule_id": scheduleID,
				"kind":        kind,
			}).Warn("Failed to publish seat event")
		}
	}()
}
