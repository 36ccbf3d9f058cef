package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/middleware"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
)

// Router groups the handlers mounted under /api/v1
type Router struct {
	Bookings  *BookingHandler
	Schedules *ScheduleHandler
	Admin     *AdminHandler
	JWT       *jwt.Service
	Logger    *logrus.Logger
}

// Register mounts every API route on the engine
func (r *Router) Register(engine *gin.Engine) {
	requireAuth := middleware.AuthMiddleware(r.JWT, r.Logger)
	optionalAuth := middleware.OptionalAuth(r.JWT, r.Logger)
	adminOnly := middleware.RequireRole(jwt.RoleAdmin)

	v1 := engine.Group("/api/v1")

	schedules := v1.Group("/schedules")
	{
		schedules.GET("/:id/availability", r.Schedules.GetAvailability)
		schedules.POST("", requireAuth, adminOnly, r.Schedules.CreateSchedule)
		schedules.DELETE("/:id", requireAuth, adminOnly, r.Schedules.DeleteSchedule)
	}

	bookings := v1.Group("/bookings")
	{
		bookings.POST("", optionalAuth, r.Bookings.CreateBooking)
		bookings.GET("/reference/:pnr", optionalAuth, r.Bookings.GetBookingByReference)
		bookings.GET("/:id", optionalAuth, r.Bookings.GetBooking)
		bookings.GET("/:id/qr", optionalAuth, r.Bookings.GetBoardingQR)
		bookings.POST("/:id/cancel", optionalAuth, r.Bookings.CancelBooking)
		bookings.POST("/:id/confirm-payment", optionalAuth, r.Bookings.ConfirmPayment)
		bookings.POST("/:id/refund", requireAuth, adminOnly, r.Bookings.RefundBooking)
	}

	admin := v1.Group("/admin", requireAuth, adminOnly)
	{
		admin.GET("/inventory/audit", r.Admin.RunInventoryAudit)
		admin.GET("/cron/status", r.Admin.GetJobStatus)
	}
}
