package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// InventoryAuditor runs one pass of the counter-vs-ledger audit
type InventoryAuditor interface {
	Run(ctx context.Context) (*models.InventoryAuditReport, error)
}

// JobStatusReporter exposes scheduled job state
type JobStatusReporter interface {
	GetJobStatus() map[string]interface{}
}

// AdminHandler handles admin-only inventory endpoints
type AdminHandler struct {
	auditor InventoryAuditor
	jobs    JobStatusReporter
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler; jobs may be nil when the scheduler is disabled
func NewAdminHandler(auditor InventoryAuditor, jobs JobStatusReporter, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		auditor: auditor,
		jobs:    jobs,
		logger:  logger,
	}
}

// RunInventoryAudit handles GET /api/v1/admin/inventory/audit
func (h *AdminHandler) RunInventoryAudit(c *gin.Context) {
	report, err := h.auditor.Run(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if len(report.Mismatches) > 0 {
		h.logger.WithField("mismatches", len(report.Mismatches)).Warn("Manual inventory audit found mismatches")
	}

	c.JSON(http.StatusOK, gin.H{
		"consistent": len(report.Mismatches) == 0,
		"report":     report,
	})
}

// GetJobStatus handles GET /api/v1/admin/cron/status
func (h *AdminHandler) GetJobStatus(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"running": false, "job_count": 0})
		return
	}
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}
