package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultAuditSchedule runs the inventory audit every 15 minutes
// Cron format: second minute hour day month weekday
const DefaultAuditSchedule = "0 */15 * * * *"

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	auditSvc   *InventoryAuditService
	auditSpec  string
	jobTimeout time.Duration
	logger     *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(auditSvc *InventoryAuditService, auditSpec string, logger *logrus.Logger) *CronService {
	if auditSpec == "" {
		auditSpec = DefaultAuditSchedule
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// Seconds precision; a slow audit never overlaps the next run
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &CronService{
		cron:       c,
		auditSvc:   auditSvc,
		auditSpec:  auditSpec,
		jobTimeout: time.Minute,
		logger:     logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.auditSpec, s.inventoryAuditJob); err != nil {
		return fmt.Errorf("failed to schedule inventory audit job: %w", err)
	}
	s.logger.WithField("schedule", s.auditSpec).Info("Scheduled: inventory audit")

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// inventoryAuditJob compares capacity counters with the seat ledger
func (s *CronService) inventoryAuditJob() {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	report, err := s.auditSvc.Run(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Inventory audit failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"schedules":  report.Schedules,
		"mismatches": len(report.Mismatches),
		"duration":   time.Since(startTime).String(),
	}).Info("[CRON] Inventory audit finished")
}

// RunInventoryAuditNow runs the audit job immediately
func (s *CronService) RunInventoryAuditNow() {
	s.logger.Info("[MANUAL] Running inventory audit now...")
	s.inventoryAuditJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
