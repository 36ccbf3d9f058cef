package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// retryAfterSeconds is suggested to clients when storage contention outlasted our retries
const retryAfterSeconds = 1

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SeatConflictResponse lists the seats that were taken by a concurrent booking
type SeatConflictResponse struct {
	ErrorResponse
	UnavailableSeats []string `json:"unavailable_seats"`
}

// respondError maps service errors onto HTTP responses.
// Internal consistency failures are logged in full and answered with a generic 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validationErr *models.ValidationError
		notFoundErr   *models.NotFoundError
		conflictErr   *models.SeatConflictError
		stateErr      *models.BookingStateError
		inUseErr      *models.ScheduleInUseError
		existsErr     *models.ScheduleExistsError
		storageErr    *models.StorageConflictError
		timeoutErr    *models.StorageTimeoutError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: validationErr.Error(),
			Code:    "VALIDATION_ERROR",
		})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: notFoundErr.Error(),
			Code:    "NOT_FOUND",
		})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, SeatConflictResponse{
			ErrorResponse: ErrorResponse{
				Error:   "seat_conflict",
				Message: "Some of the selected seats are no longer available",
				Code:    "SEATS_UNAVAILABLE",
			},
			UnavailableSeats: conflictErr.Seats,
		})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "invalid_booking_state",
			Message: stateErr.Error(),
			Code:    "BOOKING_STATE_CONFLICT",
		})
	case errors.As(err, &inUseErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "schedule_in_use",
			Message: inUseErr.Error(),
			Code:    "SCHEDULE_IN_USE",
		})
	case errors.As(err, &existsErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "schedule_exists",
			Message: existsErr.Error(),
			Code:    "SCHEDULE_EXISTS",
		})
	case errors.As(err, &storageErr):
		logger.WithError(err).Warn("Storage contention exhausted retries")
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "busy",
			Message: "The system is busy, please try again",
			Code:    "STORAGE_CONFLICT",
		})
	case errors.As(err, &timeoutErr):
		logger.WithError(err).Warn("Storage contention timed out")
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "timeout",
			Message: "The system is busy, please try again",
			Code:    "STORAGE_TIMEOUT",
		})
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An unexpected error occurred",
			Code:    "INTERNAL_ERROR",
		})
	}
}

// respondBindError answers a request body that failed binding or tag validation
func respondBindError(c *gin.Context, err error) {
	message := "Invalid request body"
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		message = first.Namespace() + " failed on '" + first.Tag() + "'"
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
		Code:    "VALIDATION_ERROR",
	})
}
