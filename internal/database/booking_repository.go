package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, booking_reference, schedule_id, user_id, status, payment_status,
	passenger_count, total_amount, discount_amount, final_amount, refund_amount,
	contact_name, contact_phone, contact_email, booking_source, device_info,
	cancellation_reason, cancelled_by_user_id, paid_at, cancelled_at, refunded_at,
	created_at, updated_at`

// ============================================================================
// REFERENCE GENERATION
// ============================================================================

// GenerateBookingReference generates a unique booking reference
// Format: TB-YYYYMMDD-XXXXXX (6 char hex)
// Example: TB-20260315-A1B2C3
func (r *BookingRepository) GenerateBookingReference(ctx context.Context) (string, error) {
	todayStr := time.Now().Format("20060102")
	q := queryer(ctx, r.db)

	for attempts := 0; attempts < 10; attempts++ {
		randomBytes := make([]byte, 3)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		randomStr := strings.ToUpper(hex.EncodeToString(randomBytes))

		newRef := fmt.Sprintf("TB-%s-%s", todayStr, randomStr)

		var count int
		err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM bookings WHERE booking_reference = $1`, newRef)
		if err != nil {
			return "", fmt.Errorf("failed to check reference uniqueness: %w", err)
		}

		if count == 0 {
			return newRef, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique booking reference after 10 attempts")
}

// ============================================================================
// WRITES (transaction required)
// ============================================================================

// Create inserts a booking row
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}

	query := `
		INSERT INTO bookings (
			id, booking_reference, schedule_id, user_id, status, payment_status,
			passenger_count, total_amount, discount_amount, final_amount,
			contact_name, contact_phone, contact_email, booking_source, device_info, paid_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRowxContext(ctx, query,
		booking.ID, booking.BookingReference, booking.ScheduleID, booking.UserID,
		booking.Status, booking.PaymentStatus,
		booking.PassengerCount, booking.TotalAmount, booking.DiscountAmount, booking.FinalAmount,
		booking.ContactName, booking.ContactPhone, booking.ContactEmail,
		booking.BookingSource, booking.DeviceInfo, booking.PaidAt,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// LockByID loads a booking and holds its row lock for the rest of the transaction
func (r *BookingRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, tx, query, id.String(), id)
}

// MarkCancelled moves an active booking to cancelled with the given payment outcome
func (r *BookingRepository) MarkCancelled(ctx context.Context, id uuid.UUID, update models.CancellationUpdate) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE bookings
		SET status = 'cancelled',
			payment_status = $2,
			cancellation_reason = $3,
			cancelled_by_user_id = $4,
			refund_amount = $5,
			refunded_at = CASE WHEN $5::numeric IS NOT NULL THEN NOW() ELSE refunded_at END,
			cancelled_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`

	result, err := tx.ExecContext(ctx, query, id, update.PaymentStatus, update.Reason, update.CancelledBy, update.RefundAmount)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	return expectOneRow(result, id)
}

// MarkPaid records payment for a pending booking and confirms it
func (r *BookingRepository) MarkPaid(ctx context.Context, id uuid.UUID) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid', paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_status = 'pending'
	`

	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}
	return expectOneRow(result, id)
}

// ============================================================================
// READS
// ============================================================================

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.getOne(ctx, queryer(ctx, r.db), query, id.String(), id)
}

// GetByReference retrieves a booking by its PNR
func (r *BookingRepository) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if reference == "" {
		return nil, models.ErrEmptyReference
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_reference = $1`
	return r.getOne(ctx, queryer(ctx, r.db), query, reference, reference)
}

// CountActiveBySchedule counts bookings on a schedule that are not cancelled
func (r *BookingRepository) CountActiveBySchedule(ctx context.Context, scheduleID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, queryer(ctx, r.db), &count,
		`SELECT COUNT(*) FROM bookings WHERE schedule_id = $1 AND status <> 'cancelled'`, scheduleID)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return count, nil
}

func (r *BookingRepository) getOne(ctx context.Context, q sqlx.QueryerContext, query, label string, arg interface{}) (*models.Booking, error) {
	var booking models.Booking
	if err := sqlx.GetContext(ctx, q, &booking, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Resource: "booking", ID: label}
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func expectOneRow(result sql.Result, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("booking %s was not updated: status changed concurrently", id)
	}
	return nil
}
