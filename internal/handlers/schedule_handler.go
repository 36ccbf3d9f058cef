package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// ScheduleService manages schedule capacity records
type ScheduleService interface {
	CreateSchedule(ctx context.Context, req *models.CreateScheduleRequest) (*models.ScheduleCapacity, error)
	DeleteSchedule(ctx context.Context, scheduleID string) error
}

// AvailabilityReader answers display-only availability queries
type AvailabilityReader interface {
	GetAvailability(ctx context.Context, scheduleID string) (*models.Availability, error)
}

// ScheduleHandler handles schedule capacity and availability endpoints
type ScheduleHandler struct {
	schedules    ScheduleService
	availability AvailabilityReader
	logger       *logrus.Logger
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(schedules ScheduleService, availability AvailabilityReader, logger *logrus.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules:    schedules,
		availability: availability,
		logger:       logger,
	}
}

// CreateSchedule handles POST /api/v1/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req models.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	capacity, err := h.schedules.CreateSchedule(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, capacity)
}

// DeleteSchedule handles DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	scheduleID := c.Param("id")
	if err := h.schedules.DeleteSchedule(c.Request.Context(), scheduleID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetAvailability handles GET /api/v1/schedules/:id/availability.
// The answer is advisory; booking re-checks every seat inside its transaction.
func (h *ScheduleHandler) GetAvailability(c *gin.Context) {
	availability, err := h.availability.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, availability)
}
