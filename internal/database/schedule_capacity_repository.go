package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// ScheduleCapacityRepository handles the per-schedule seat counter
type ScheduleCapacityRepository struct {
	db *sqlx.DB
}

// NewScheduleCapacityRepository creates a new ScheduleCapacityRepository
func NewScheduleCapacityRepository(db *sqlx.DB) *ScheduleCapacityRepository {
	return &ScheduleCapacityRepository{db: db}
}

const capacityColumns = `schedule_id, route_name, travel_date, total_seats, available_seats, created_at, updated_at`

// ============================================================================
// READS
// ============================================================================

// GetCapacity returns the current capacity row without locking it
func (r *ScheduleCapacityRepository) GetCapacity(ctx context.Context, scheduleID string) (*models.ScheduleCapacity, error) {
	query := `SELECT ` + capacityColumns + ` FROM schedule_capacity WHERE schedule_id = $1`

	var capacity models.ScheduleCapacity
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &capacity, query, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Resource: "schedule", ID: scheduleID}
		}
		return nil, fmt.Errorf("failed to get schedule capacity: %w", err)
	}
	return &capacity, nil
}

// LockCapacity takes a row lock on the schedule for the rest of the transaction.
// Every reserve and release on the schedule goes through this lock first.
func (r *ScheduleCapacityRepository) LockCapacity(ctx context.Context, scheduleID string) (*models.ScheduleCapacity, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + capacityColumns + ` FROM schedule_capacity WHERE schedule_id = $1 FOR UPDATE`

	var capacity models.ScheduleCapacity
	if err := tx.GetContext(ctx, &capacity, query, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Resource: "schedule", ID: scheduleID}
		}
		return nil, fmt.Errorf("failed to lock schedule capacity: %w", err)
	}
	return &capacity, nil
}

// AuditCounts compares every schedule's counter with its booked ledger rows
func (r *ScheduleCapacityRepository) AuditCounts(ctx context.Context) ([]models.InventoryAuditResult, error) {
	query := `
		SELECT c.schedule_id, c.total_seats, c.available_seats,
			   COUNT(l.id) AS booked_ledger_rows,
			   COUNT(l.id) - COUNT(DISTINCT l.seat_identifier) AS duplicate_seats
		FROM schedule_capacity c
		LEFT JOIN seat_ledger l
			ON l.schedule_id = c.schedule_id AND l.status = 'booked'
		GROUP BY c.schedule_id, c.total_seats, c.available_seats
		ORDER BY c.schedule_id
	`

	var results []models.InventoryAuditResult
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &results, query); err != nil {
		return nil, fmt.Errorf("failed to audit inventory: %w", err)
	}
	return results, nil
}

// ============================================================================
// MUTATIONS (transaction required)
// ============================================================================

// CreateSchedule registers a schedule with every seat available
func (r *ScheduleCapacityRepository) CreateSchedule(ctx context.Context, capacity *models.ScheduleCapacity) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO schedule_capacity (schedule_id, route_name, travel_date, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRowxContext(ctx, query,
		capacity.ScheduleID, capacity.RouteName, capacity.TravelDate,
		capacity.TotalSeats, capacity.AvailableSeats,
	).Scan(&capacity.CreatedAt, &capacity.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return &models.ScheduleExistsError{ScheduleID: capacity.ScheduleID}
		}
		return fmt.Errorf("failed to create schedule capacity: %w", err)
	}
	return nil
}

// DecrementAvailable atomically takes n seats from the counter and returns what remains.
// The guard lives in the UPDATE itself so the counter can never go negative.
func (r *ScheduleCapacityRepository) DecrementAvailable(ctx context.Context, scheduleID string, n int) (int, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("decrement must be positive, got %d", n)
	}

	query := `
		UPDATE schedule_capacity
		SET available_seats = available_seats - $2, updated_at = NOW()
		WHERE schedule_id = $1 AND available_seats >= $2
		RETURNING available_seats
	`

	var remaining int
	err = tx.QueryRowxContext(ctx, query, scheduleID, n).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to decrement available seats: %w", err)
	}

	current, err := r.currentCounts(ctx, tx, scheduleID)
	if err != nil {
		return 0, err
	}
	return 0, &models.InsufficientCapacityError{
		ScheduleID: scheduleID,
		Requested:  n,
		Available:  current.AvailableSeats,
	}
}

// IncrementAvailable atomically returns n seats to the counter, never exceeding total_seats
func (r *ScheduleCapacityRepository) IncrementAvailable(ctx context.Context, scheduleID string, n int) (int, error) {
	tx, err := requireTx(ctx)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("increment must be positive, got %d", n)
	}

	query := `
		UPDATE schedule_capacity
		SET available_seats = available_seats + $2, updated_at = NOW()
		WHERE schedule_id = $1 AND available_seats + $2 <= total_seats
		RETURNING available_seats
	`

	var available int
	err = tx.QueryRowxContext(ctx, query, scheduleID, n).Scan(&available)
	if err == nil {
		return available, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to increment available seats: %w", err)
	}

	current, err := r.currentCounts(ctx, tx, scheduleID)
	if err != nil {
		return 0, err
	}
	return 0, &models.CapacityOverflowError{
		ScheduleID: scheduleID,
		Increment:  n,
		Available:  current.AvailableSeats,
		Total:      current.TotalSeats,
	}
}

// DeleteSchedule removes the capacity row. Callers check for active bookings first.
func (r *ScheduleCapacityRepository) DeleteSchedule(ctx context.Context, scheduleID string) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM schedule_capacity WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule capacity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	return nil
}

type capacityCounts struct {
	TotalSeats     int `db:"total_seats"`
	AvailableSeats int `db:"available_seats"`
}

// currentCounts explains a guarded UPDATE that matched no row
func (r *ScheduleCapacityRepository) currentCounts(ctx context.Context, tx *sqlx.Tx, scheduleID string) (*capacityCounts, error) {
	var counts capacityCounts
	err := tx.GetContext(ctx, &counts,
		`SELECT total_seats, available_seats FROM schedule_capacity WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Resource: "schedule", ID: scheduleID}
		}
		return nil, fmt.Errorf("failed to read schedule capacity: %w", err)
	}
	return &counts, nil
}
