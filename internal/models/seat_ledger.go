package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatLedgerStatus is the state of one seat assignment
type SeatLedgerStatus string

const (
	SeatLedgerBooked    SeatLedgerStatus = "booked"
	SeatLedgerCancelled SeatLedgerStatus = "cancelled"
)

// SeatLedgerEntry records that a seat on a schedule is held by a booking.
// At most one booked entry may exist per (schedule_id, seat_identifier).
type SeatLedgerEntry struct {
	ID              int64            `json:"id" db:"id"`
	ScheduleID      string           `json:"schedule_id" db:"schedule_id"`
	SeatIdentifier  string           `json:"seat_identifier" db:"seat_identifier"`
	BookingID       *uuid.UUID       `json:"booking_id,omitempty" db:"booking_id"`
	Status          SeatLedgerStatus `json:"status" db:"status"`
	PassengerName   *string          `json:"passenger_name,omitempty" db:"passenger_name"`
	PassengerAge    *int             `json:"passenger_age,omitempty" db:"passenger_age"`
	PassengerGender *string          `json:"passenger_gender,omitempty" db:"passenger_gender"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	ReleasedAt      *time.Time       `json:"released_at,omitempty" db:"released_at"`
}

// SeatAssignment pairs a requested seat with its passenger for insertion
type SeatAssignment struct {
	SeatIdentifier string
	Passenger      PassengerDetail
}

// Availability is a best-effort snapshot of a schedule's seat state for display
type Availability struct {
	ScheduleID     string    `json:"schedule_id"`
	TotalSeats     int       `json:"total_seats"`
	AvailableCount int       `json:"available_count"`
	BookedSeatIDs  []string  `json:"booked_seat_ids"`
	AsOf           time.Time `json:"as_of"`
}

// SeatEventKind tells listeners why availability changed
type SeatEventKind string

const (
	SeatEventReserved SeatEventKind = "reserved"
	SeatEventReleased SeatEventKind = "released"
)

// SeatAvailabilityEvent is published after a committed reserve or release
type SeatAvailabilityEvent struct {
	ScheduleID     string        `json:"schedule_id"`
	Kind           SeatEventKind `json:"kind"`
	BookingID      uuid.UUID     `json:"booking_id"`
	ChangedSeats   []string      `json:"changed_seats"`
	AvailableSeats int           `json:"available_seats"`
	BookedSeatIDs  []string      `json:"booked_seat_ids"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// InventoryAuditResult compares the capacity counter against the ledger for one schedule
type InventoryAuditResult struct {
	ScheduleID       string `json:"schedule_id" db:"schedule_id"`
	TotalSeats       int    `json:"total_seats" db:"total_seats"`
	AvailableSeats   int    `json:"available_seats" db:"available_seats"`
	BookedLedgerRows int    `json:"booked_ledger_rows" db:"booked_ledger_rows"`
	DuplicateSeats   int    `json:"duplicate_seats" db:"duplicate_seats"`
}

// Consistent reports whether booked rows == total - available and no seat is doubled
func (r InventoryAuditResult) Consistent() bool {
	return r.BookedLedgerRows == r.TotalSeats-r.AvailableSeats && r.DuplicateSeats == 0
}

// InventoryAuditReport summarises one audit pass
type InventoryAuditReport struct {
	CheckedAt  time.Time              `json:"checked_at"`
	Schedules  int                    `json:"schedules"`
	Mismatches []InventoryAuditResult `json:"mismatches"`
}
