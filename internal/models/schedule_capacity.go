package models

import (
	"time"
)

// ScheduleCapacity is the seat counter for one concrete departure
type ScheduleCapacity struct {
	ScheduleID     string    `json:"schedule_id" db:"schedule_id"`
	RouteName      string    `json:"route_name" db:"route_name"`
	TravelDate     time.Time `json:"travel_date" db:"travel_date"`
	TotalSeats     int       `json:"total_seats" db:"total_seats"`
	AvailableSeats int       `json:"available_seats" db:"available_seats"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// BookedSeats is the number of seats the counter considers sold
func (s *ScheduleCapacity) BookedSeats() int {
	return s.TotalSeats - s.AvailableSeats
}

// CreateScheduleRequest registers capacity for a new schedule
type CreateScheduleRequest struct {
	ScheduleID string `json:"schedule_id" binding:"required,max=64"`
	RouteName  string `json:"route_name" binding:"max=200"`
	TravelDate string `json:"travel_date" binding:"required"`
	TotalSeats int    `json:"total_seats" binding:"required,min=1,max=1000"`
}

// Validate validates the create schedule request
func (r *CreateScheduleRequest) Validate() error {
	if r.ScheduleID == "" {
		return &ValidationError{Field: "schedule_id", Msg: "is required"}
	}
	if r.TotalSeats <= 0 {
		return &ValidationError{Field: "total_seats", Msg: "must be at least 1"}
	}
	if _, err := time.Parse("2006-01-02", r.TravelDate); err != nil {
		return &ValidationError{Field: "travel_date", Msg: "must be in YYYY-MM-DD format"}
	}
	return nil
}

// ToCapacity builds the initial capacity record (all seats available)
func (r *CreateScheduleRequest) ToCapacity() *ScheduleCapacity {
	travelDate, _ := time.Parse("2006-01-02", r.TravelDate)
	return &ScheduleCapacity{
		ScheduleID:     r.ScheduleID,
		RouteName:      r.RouteName,
		TravelDate:     travelDate,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.TotalSeats,
	}
}
