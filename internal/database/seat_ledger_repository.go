package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// SeatLedgerRepository handles the authoritative seat assignment records
type SeatLedgerRepository struct {
	db *sqlx.DB
}

// NewSeatLedgerRepository creates a new SeatLedgerRepository
func NewSeatLedgerRepository(db *sqlx.DB) *SeatLedgerRepository {
	return &SeatLedgerRepository{db: db}
}

// FindConflicting returns which of seats are already booked on the schedule.
// The matching rows stay locked until the transaction ends.
func (r *SeatLedgerRepository) FindConflicting(ctx context.Context, scheduleID string, seats []string) ([]string, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		return []string{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT seat_identifier
		FROM seat_ledger
		WHERE schedule_id = ? AND status = 'booked' AND seat_identifier IN (?)
		ORDER BY seat_identifier
		FOR UPDATE
	`, scheduleID, seats)
	if err != nil {
		return nil, fmt.Errorf("failed to build conflict query: %w", err)
	}

	conflicts := []string{}
	if err := tx.SelectContext(ctx, &conflicts, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to check seat conflicts: %w", err)
	}
	return conflicts, nil
}

// BookSeats inserts one booked row per seat. A concurrent insert of the same seat
// trips the partial unique index and is reported as a SeatConflictError.
// The insert stops at the first violation, so that error names only the first
// taken seat; FindConflicting is the call that reports every taken seat.
func (r *SeatLedgerRepository) BookSeats(ctx context.Context, scheduleID string, bookingID uuid.UUID, seats []models.SeatAssignment) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO seat_ledger (
			schedule_id, seat_identifier, booking_id, status,
			passenger_name, passenger_age, passenger_gender
		) VALUES ($1, $2, $3, 'booked', $4, $5, $6)
	`

	for _, seat := range seats {
		var name *string
		if seat.Passenger.Name != "" {
			n := seat.Passenger.Name
			name = &n
		}

		_, err := tx.ExecContext(ctx, query,
			scheduleID, seat.SeatIdentifier, bookingID,
			name, seat.Passenger.Age, seat.Passenger.Gender,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				conflict := seat.SeatIdentifier
				if parsed, ok := conflictingSeat(err); ok {
					conflict = parsed
				}
				return &models.SeatConflictError{ScheduleID: scheduleID, Seats: []string{conflict}}
			}
			return fmt.Errorf("failed to book seat %s: %w", seat.SeatIdentifier, err)
		}
	}

	return nil
}

// ReleaseSeats marks every booked row of the booking as cancelled and returns how many changed.
// Releasing an already released booking returns 0.
func (r *SeatLedgerRepository) ReleaseSeats(ctx context.Context, bookingID uuid.UUID) (int, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE seat_ledger
		SET status = 'cancelled', released_at = NOW()
		WHERE booking_id = $1 AND status = 'booked'
	`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// BookedSeats lists the seats currently booked on a schedule
func (r *SeatLedgerRepository) BookedSeats(ctx context.Context, scheduleID string) ([]string, error) {
	query := `
		SELECT seat_identifier
		FROM seat_ledger
		WHERE schedule_id = $1 AND status = 'booked'
		ORDER BY seat_identifier
	`

	seats := []string{}
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &seats, query, scheduleID); err != nil {
		return nil, fmt.Errorf("failed to list booked seats: %w", err)
	}
	return seats, nil
}

// SeatsForBooking returns every ledger row of a booking, released rows included
func (r *SeatLedgerRepository) SeatsForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.SeatLedgerEntry, error) {
	query := `
		SELECT id, schedule_id, seat_identifier, booking_id, status,
			   passenger_name, passenger_age, passenger_gender, created_at, released_at
		FROM seat_ledger
		WHERE booking_id = $1
		ORDER BY id
	`

	entries := []models.SeatLedgerEntry{}
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &entries, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking seats: %w", err)
	}
	return entries, nil
}
