package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError is raised for malformed input before any transaction opens
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NotFoundError is raised for an unknown schedule or booking
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// SeatConflictError is a business rejection: the listed seats are already booked
type SeatConflictError struct {
	ScheduleID string
	Seats      []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats no longer available on schedule %s: %s", e.ScheduleID, strings.Join(e.Seats, ", "))
}

// InsufficientCapacityError means the capacity counter would go negative.
// With ledger and counter in sync this is unreachable, so it signals desynchronization.
type InsufficientCapacityError struct {
	ScheduleID string
	Requested  int
	Available  int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity on schedule %s: requested %d, available %d",
		e.ScheduleID, e.Requested, e.Available)
}

// CapacityOverflowError means a release would push available seats above total seats
type CapacityOverflowError struct {
	ScheduleID string
	Increment  int
	Available  int
	Total      int
}

func (e *CapacityOverflowError) Error() string {
	return fmt.Sprintf("capacity overflow on schedule %s: available %d + %d exceeds total %d",
		e.ScheduleID, e.Available, e.Increment, e.Total)
}

// StorageConflictError is returned after transient write conflicts exhausted all retries
type StorageConflictError struct {
	Attempts int
	Err      error
}

func (e *StorageConflictError) Error() string {
	return fmt.Sprintf("storage contention persisted after %d attempts, please try again", e.Attempts)
}

func (e *StorageConflictError) Unwrap() error { return e.Err }

// StorageTimeoutError is returned when retry backoff would exceed the total wait budget
type StorageTimeoutError struct {
	Waited time.Duration
	Err    error
}

func (e *StorageTimeoutError) Error() string {
	return fmt.Sprintf("storage contention timed out after %s, please try again", e.Waited)
}

func (e *StorageTimeoutError) Unwrap() error { return e.Err }

// BookingStateError is raised when a transition is not allowed from the current status
type BookingStateError struct {
	BookingID string
	Status    BookingStatus
	Action    string
}

func (e *BookingStateError) Error() string {
	return fmt.Sprintf("cannot %s booking %s in status %s", e.Action, e.BookingID, e.Status)
}

// ScheduleInUseError prevents deleting a schedule that still has active bookings
type ScheduleInUseError struct {
	ScheduleID     string
	ActiveBookings int
}

func (e *ScheduleInUseError) Error() string {
	return fmt.Sprintf("schedule %s has %d active bookings", e.ScheduleID, e.ActiveBookings)
}

// ScheduleExistsError is raised when creating a schedule id that is already registered
type ScheduleExistsError struct {
	ScheduleID string
}

func (e *ScheduleExistsError) Error() string {
	return fmt.Sprintf("schedule %s already exists", e.ScheduleID)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsSeatConflict(err error) bool {
	var target *SeatConflictError
	return errors.As(err, &target)
}

func IsInsufficientCapacity(err error) bool {
	var target *InsufficientCapacityError
	return errors.As(err, &target)
}

func IsCapacityOverflow(err error) bool {
	var target *CapacityOverflowError
	return errors.As(err, &target)
}

func IsStorageConflict(err error) bool {
	var target *StorageConflictError
	return errors.As(err, &target)
}

func IsStorageTimeout(err error) bool {
	var target *StorageTimeoutError
	return errors.As(err, &target)
}

func IsBookingState(err error) bool {
	var target *BookingStateError
	return errors.As(err, &target)
}
