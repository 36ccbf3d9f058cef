package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// BookingSource represents where the booking originated
type BookingSource string

const (
	BookingSourceApp   BookingSource = "app"
	BookingSourceWeb   BookingSource = "web"
	BookingSourceAgent BookingSource = "agent"
	BookingSourceKiosk BookingSource = "kiosk"
)

// DeviceInfo stores device metadata captured at booking time (JSONB)
type DeviceInfo map[string]interface{}

func (d DeviceInfo) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *DeviceInfo) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported device_info type %T", value)
	}
}

// Booking is a confirmed or pending reservation of seats on one schedule
type Booking struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	BookingReference   string        `json:"booking_reference" db:"booking_reference"`
	ScheduleID         string        `json:"schedule_id" db:"schedule_id"`
	UserID             *uuid.UUID    `json:"user_id,omitempty" db:"user_id"`
	Status             BookingStatus `json:"status" db:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status" db:"payment_status"`
	PassengerCount     int           `json:"passenger_count" db:"passenger_count"`
	TotalAmount        float64       `json:"total_amount" db:"total_amount"`
	DiscountAmount     float64       `json:"discount_amount" db:"discount_amount"`
	FinalAmount        float64       `json:"final_amount" db:"final_amount"`
	RefundAmount       *float64      `json:"refund_amount,omitempty" db:"refund_amount"`
	ContactName        *string       `json:"contact_name,omitempty" db:"contact_name"`
	ContactPhone       *string       `json:"contact_phone,omitempty" db:"contact_phone"`
	ContactEmail       *string       `json:"contact_email,omitempty" db:"contact_email"`
	BookingSource      BookingSource `json:"booking_source" db:"booking_source"`
	DeviceInfo         DeviceInfo    `json:"device_info,omitempty" db:"device_info"`
	CancellationReason *string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledByUserID  *uuid.UUID    `json:"cancelled_by_user_id,omitempty" db:"cancelled_by_user_id"`
	PaidAt             *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	RefundedAt         *time.Time    `json:"refunded_at,omitempty" db:"refunded_at"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`

	Seats []SeatLedgerEntry `json:"seats,omitempty" db:"-"`
}

// IsActive reports whether the booking still holds its seats
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// SeatNumbers returns the seat identifiers attached to the booking
func (b *Booking) SeatNumbers() []string {
	seats := make([]string, 0, len(b.Seats))
	for _, s := range b.Seats {
		seats = append(seats, s.SeatIdentifier)
	}
	return seats
}

// PassengerDetail describes the traveller occupying one requested seat.
// Passengers are matched to seat_numbers by position.
type PassengerDetail struct {
	Name   string  `json:"name" binding:"required,max=120"`
	Age    *int    `json:"age,omitempty" binding:"omitempty,gte=0,lte=130"`
	Gender *string `json:"gender,omitempty" binding:"omitempty,oneof=male female other"`
}

// CreateBookingRequest represents the request to reserve seats on a schedule.
// Amounts come from the pricing collaborator and are persisted as given.
type CreateBookingRequest struct {
	ScheduleID     string            `json:"schedule_id" binding:"required,max=64"`
	SeatNumbers    []string          `json:"seat_numbers" binding:"required,min=1,max=20,dive,seat_number"`
	Passengers     []PassengerDetail `json:"passengers" binding:"required,min=1,max=20,dive"`
	TotalAmount    float64           `json:"total_amount" binding:"gte=0"`
	DiscountAmount float64           `json:"discount_amount" binding:"gte=0"`
	ContactName    *string           `json:"contact_name,omitempty" binding:"omitempty,max=120"`
	ContactPhone   *string           `json:"contact_phone,omitempty"`
	ContactEmail   *string           `json:"contact_email,omitempty" binding:"omitempty,email"`
	PayNow         *bool             `json:"pay_now,omitempty"`
}

// BookingMeta carries request-derived data that is not part of the JSON body
type BookingMeta struct {
	UserID     *uuid.UUID
	Source     BookingSource
	DeviceInfo DeviceInfo
}

// CancelBookingRequest represents the request to cancel or refund a booking.
// BookingReference authorizes anonymous callers to act on a booking that has no owner.
type CancelBookingRequest struct {
	Reason           *string `json:"reason,omitempty" binding:"omitempty,max=500"`
	BookingReference *string `json:"booking_reference,omitempty" binding:"omitempty,max=32"`
}

// ConfirmPaymentRequest carries the PNR when an anonymous caller confirms payment
type ConfirmPaymentRequest struct {
	BookingReference *string `json:"booking_reference,omitempty" binding:"omitempty,max=32"`
}

// Validate checks amounts; seat and passenger shape is checked by the orchestrator
func (r *CreateBookingRequest) Validate() error {
	if r.TotalAmount < 0 {
		return &ValidationError{Field: "total_amount", Msg: "must not be negative"}
	}
	if r.DiscountAmount < 0 {
		return &ValidationError{Field: "discount_amount", Msg: "must not be negative"}
	}
	if r.DiscountAmount > r.TotalAmount {
		return &ValidationError{Field: "discount_amount", Msg: "must not exceed total_amount"}
	}
	if len(r.SeatNumbers) == 0 {
		return &ValidationError{Field: "seat_numbers", Msg: "at least one seat is required"}
	}
	if len(r.SeatNumbers) != len(r.Passengers) {
		return &ValidationError{
			Field: "passengers",
			Msg:   fmt.Sprintf("got %d passengers for %d seats", len(r.Passengers), len(r.SeatNumbers)),
		}
	}
	for i, p := range r.Passengers {
		if p.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("passengers[%d].name", i), Msg: "is required"}
		}
	}
	return nil
}

// PaysImmediately reports whether payment is simulated as instant (the default)
func (r *CreateBookingRequest) PaysImmediately() bool {
	return r.PayNow == nil || *r.PayNow
}

// FinalAmount is the amount charged after discount
func (r *CreateBookingRequest) FinalAmount() float64 {
	return r.TotalAmount - r.DiscountAmount
}

// ErrEmptyReference is returned when a booking lookup is attempted with a blank PNR
var ErrEmptyReference = errors.New("booking reference cannot be empty")

// CancellationUpdate describes the terminal state written when a booking releases its seats
type CancellationUpdate struct {
	PaymentStatus PaymentStatus
	Reason        *string
	CancelledBy   *uuid.UUID
	RefundAmount  *float64
}
