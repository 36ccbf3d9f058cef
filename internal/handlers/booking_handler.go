package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/smarttransit/seat-inventory/internal/middleware"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/internal/utils"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
)

// BookingSourceHeader lets kiosks and apps declare their channel explicitly
const BookingSourceHeader = "X-Booking-Source"

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// BookingService is the booking surface the handler drives
type BookingService interface {
	CreateBooking(ctx context.Context, req *models.CreateBookingRequest, meta models.BookingMeta) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, actor *uuid.UUID, reason *string) (*models.Booking, error)
	RefundBooking(ctx context.Context, bookingID uuid.UUID, actor *uuid.UUID, reason *string) (*models.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
}

// BookingHandler handles seat booking endpoints
type BookingHandler struct {
	bookings BookingService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// ============================================================================
// CREATE - POST /api/v1/bookings
// ============================================================================

// CreateBooking reserves seats on a schedule. Anonymous bookings are allowed;
// an authenticated caller becomes the booking owner.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	device := utils.ParseUserAgent(c.Request.UserAgent())
	meta := models.BookingMeta{
		DeviceInfo: device.ToBookingDeviceInfo(utils.ClientIP(c)),
	}

	isAgent := false
	if userCtx, ok := middleware.GetUserContext(c); ok {
		userID := userCtx.UserID
		meta.UserID = &userID
		isAgent = userCtx.HasRole(jwt.RoleAgent)
	}
	meta.Source = utils.ResolveBookingSource(c.GetHeader(BookingSourceHeader), device, isAgent)

	booking, err := h.bookings.CreateBooking(c.Request.Context(), &req, meta)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ============================================================================
// READ - GET /api/v1/bookings/:id, GET /api/v1/bookings/reference/:pnr
// ============================================================================

// GetBooking returns a booking with its seats
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !canView(c, booking) {
		respondForbidden(c)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetBookingByReference looks a booking up by PNR
func (h *BookingHandler) GetBookingByReference(c *gin.Context) {
	booking, err := h.bookings.GetBookingByReference(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !canView(c, booking) {
		respondForbidden(c)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// RELEASE - POST /api/v1/bookings/:id/cancel, POST /api/v1/bookings/:id/refund
// ============================================================================

// CancelBooking cancels a booking owned by the caller (or any booking for staff).
// An ownerless booking may also be cancelled by whoever presents its PNR.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	h.release(c, false)
}

// RefundBooking cancels a paid booking and records the refund (admin only)
func (h *BookingHandler) RefundBooking(c *gin.Context) {
	h.release(c, true)
}

func (h *BookingHandler) release(c *gin.Context, refund bool) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	if !refund {
		booking, err := h.bookings.GetBooking(ctx, bookingID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		if !authorizeManage(c, booking, req.BookingReference) {
			return
		}
	}

	var actor *uuid.UUID
	if userCtx, ok := middleware.GetUserContext(c); ok {
		id := userCtx.UserID
		actor = &id
	}

	var (
		booking *models.Booking
		err     error
	)
	if refund {
		booking, err = h.bookings.RefundBooking(ctx, bookingID, actor, req.Reason)
	} else {
		booking, err = h.bookings.CancelBooking(ctx, bookingID, actor, req.Reason)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// PAYMENT - POST /api/v1/bookings/:id/confirm-payment
// ============================================================================

// ConfirmPayment records the simulated payment for a pending booking
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	var req models.ConfirmPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	existing, err := h.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !authorizeManage(c, existing, req.BookingReference) {
		return
	}

	booking, err := h.bookings.ConfirmPayment(ctx, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// BOARDING CODE - GET /api/v1/bookings/:id/qr
// ============================================================================

// GetBoardingQR renders a PNG QR code carrying the PNR for confirmed bookings
func (h *BookingHandler) GetBoardingQR(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !canView(c, booking) {
		respondForbidden(c)
		return
	}

	if booking.Status != models.BookingStatusConfirmed {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "invalid_booking_state",
			Message: fmt.Sprintf("Boarding code is only available for confirmed bookings (status: %s)", booking.Status),
			Code:    "BOOKING_NOT_CONFIRMED",
		})
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < minQRSize || parsed > maxQRSize {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: fmt.Sprintf("size must be between %d and %d", minQRSize, maxQRSize),
				Code:    "VALIDATION_ERROR",
			})
			return
		}
		size = parsed
	}

	image, err := boardingQR(booking, size)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", image)
}

// BoardingPayload is the text encoded into the boarding QR code
func BoardingPayload(booking *models.Booking) string {
	return strings.Join([]string{
		"PNR:" + booking.BookingReference,
		"SCH:" + booking.ScheduleID,
		"SEATS:" + strings.Join(booking.SeatNumbers(), ","),
	}, "|")
}

func boardingQR(booking *models.Booking, size int) ([]byte, error) {
	qr, err := qrcode.New(BoardingPayload(booking), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to build boarding qr: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode boarding qr: %w", err)
	}
	return buf.Bytes(), nil
}

// ============================================================================
// HELPERS
// ============================================================================

func parseBookingID(c *gin.Context) (uuid.UUID, bool) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid booking ID",
			Code:    "INVALID_BOOKING_ID",
		})
		return uuid.Nil, false
	}
	return bookingID, true
}

// canView allows anyone holding the id or PNR of an anonymous booking;
// owned bookings are visible to the owner and staff only.
func canView(c *gin.Context, booking *models.Booking) bool {
	if booking.UserID == nil {
		return true
	}
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		return false
	}
	return canManage(userCtx, booking)
}

// authorizeManage writes the 401/403 response itself and reports whether the caller
// may change the booking: staff, the owner, or (for ownerless bookings) the PNR holder.
func authorizeManage(c *gin.Context, booking *models.Booking, reference *string) bool {
	userCtx, authenticated := middleware.GetUserContext(c)
	if authenticated && canManage(userCtx, booking) {
		return true
	}
	if booking.UserID == nil && reference != nil && matchesReference(booking, *reference) {
		return true
	}

	if !authenticated && reference == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Sign in or provide the booking reference",
			Code:    "MISSING_USER_CONTEXT",
		})
		return false
	}
	respondForbidden(c)
	return false
}

func matchesReference(booking *models.Booking, reference string) bool {
	return booking.BookingReference != "" &&
		strings.EqualFold(strings.TrimSpace(reference), booking.BookingReference)
}

func canManage(userCtx middleware.UserContext, booking *models.Booking) bool {
	if userCtx.IsAdmin() || userCtx.HasRole(jwt.RoleAgent) {
		return true
	}
	return booking.UserID != nil && *booking.UserID == userCtx.UserID
}

func respondForbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, ErrorResponse{
		Error:   "forbidden",
		Message: "You don't have permission to access this booking",
		Code:    "INSUFFICIENT_PERMISSIONS",
	})
}
