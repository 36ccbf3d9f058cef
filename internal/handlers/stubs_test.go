package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
	"github.com/stretchr/testify/require"
)

var registerOnce sync.Once

type stubBookings struct {
	bookings map[uuid.UUID]*models.Booking

	createErr  error
	releaseErr error

	lastMeta    models.BookingMeta
	lastRequest *models.CreateBookingRequest
	lastActor   *uuid.UUID
	lastReason  *string
	refunded    bool
}

func newStubBookings() *stubBookings {
	return &stubBookings{bookings: map[uuid.UUID]*models.Booking{}}
}

func (s *stubBookings) add(owner *uuid.UUID, status models.BookingStatus, payment models.PaymentStatus) *models.Booking {
	b := &models.Booking{
		ID:               uuid.New(),
		BookingReference: "TB-20261017-ABC123",
		ScheduleID:       "SCH-1",
		UserID:           owner,
		Status:           status,
		PaymentStatus:    payment,
		PassengerCount:   1,
		Seats:            []models.SeatLedgerEntry{{SeatIdentifier: "A1", Status: models.SeatLedgerBooked}},
	}
	s.bookings[b.ID] = b
	return b
}

func (s *stubBookings) CreateBooking(ctx context.Context, req *models.CreateBookingRequest, meta models.BookingMeta) (*models.Booking, error) {
	s.lastRequest = req
	s.lastMeta = meta
	if s.createErr != nil {
		return nil, s.createErr
	}
	b := &models.Booking{
		ID:               uuid.New(),
		BookingReference: "TB-20261017-00FF00",
		ScheduleID:       req.ScheduleID,
		UserID:           meta.UserID,
		Status:           models.BookingStatusConfirmed,
		PaymentStatus:    models.PaymentStatusPaid,
		PassengerCount:   len(req.SeatNumbers),
		BookingSource:    meta.Source,
	}
	s.bookings[b.ID] = b
	return b, nil
}

func (s *stubBookings) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	return b, nil
}

func (s *stubBookings) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	for _, b := range s.bookings {
		if b.BookingReference == strings.ToUpper(strings.TrimSpace(reference)) {
			return b, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "booking", ID: reference}
}

func (s *stubBookings) CancelBooking(ctx context.Context, bookingID uuid.UUID, actor *uuid.UUID, reason *string) (*models.Booking, error) {
	return s.release(bookingID, actor, reason, false)
}

func (s *stubBookings) RefundBooking(ctx context.Context, bookingID uuid.UUID, actor *uuid.UUID, reason *string) (*models.Booking, error) {
	return s.release(bookingID, actor, reason, true)
}

func (s *stubBookings) release(bookingID uuid.UUID, actor *uuid.UUID, reason *string, refund bool) (*models.Booking, error) {
	s.lastActor = actor
	s.lastReason = reason
	s.refunded = refund
	if s.releaseErr != nil {
		return nil, s.releaseErr
	}
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	b.Status = models.BookingStatusCancelled
	return b, nil
}

func (s *stubBookings) ConfirmPayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	if b.Status != models.BookingStatusPending {
		return nil, &models.BookingStateError{BookingID: bookingID.String(), Status: b.Status, Action: "confirm payment for"}
	}
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = models.PaymentStatusPaid
	return b, nil
}

type stubSchedules struct {
	created   *models.CreateScheduleRequest
	createErr error
	deleteErr error
	deleted   string

	availability map[string]*models.Availability
}

func (s *stubSchedules) CreateSchedule(ctx context.Context, req *models.CreateScheduleRequest) (*models.ScheduleCapacity, error) {
	s.created = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return req.ToCapacity(), nil
}

func (s *stubSchedules) DeleteSchedule(ctx context.Context, scheduleID string) error {
	s.deleted = scheduleID
	return s.deleteErr
}

func (s *stubSchedules) GetAvailability(ctx context.Context, scheduleID string) (*models.Availability, error) {
	a, ok := s.availability[scheduleID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	return a, nil
}

type stubAuditor struct {
	report *models.InventoryAuditReport
	err    error
}

func (s *stubAuditor) Run(ctx context.Context) (*models.InventoryAuditReport, error) {
	return s.report, s.err
}

type testAPI struct {
	engine    *gin.Engine
	jwt       *jwt.Service
	bookings  *stubBookings
	schedules *stubSchedules
	auditor   *stubAuditor
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registerOnce.Do(func() {
		require.NoError(t, RegisterValidators())
	})

	api := &testAPI{
		engine:    gin.New(),
		jwt:       jwt.NewService("handler-test-secret-0123456789", time.Hour),
		bookings:  newStubBookings(),
		schedules: &stubSchedules{availability: map[string]*models.Availability{}},
		auditor:   &stubAuditor{report: &models.InventoryAuditReport{Mismatches: []models.InventoryAuditResult{}}},
	}

	logger := quietLogger()
	router := &Router{
		Bookings:  NewBookingHandler(api.bookings, logger),
		Schedules: NewScheduleHandler(api.schedules, api.schedules, logger),
		Admin:     NewAdminHandler(api.auditor, nil, logger),
		JWT:       api.jwt,
		Logger:    logger,
	}
	router.Register(api.engine)
	return api
}

func (a *testAPI) token(t *testing.T, userID uuid.UUID, roles ...string) string {
	t.Helper()
	token, err := a.jwt.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(method, path, body, token string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}
