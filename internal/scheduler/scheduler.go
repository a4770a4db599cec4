package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/config"
	"github.com/careflowhq/careflow/internal/controller"
	"github.com/careflowhq/careflow/internal/domain/models"
	"github.com/careflowhq/careflow/internal/notify"
)

// Scheduler manages the recurring maintenance jobs: the low-stock scan and
// the on-disk backup export.
type Scheduler struct {
	cron     *cron.Cron
	ctrl     *controller.Controller
	notifier notify.Notifier
	cfg      config.Config
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. notifier may be nil when no
// alert webhook is configured; the low-stock job is then skipped.
func NewScheduler(cfg config.Config, ctrl *controller.Controller, notifier notify.Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:     cron.New(),
		ctrl:     ctrl,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start registers and starts the cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler")

	if s.notifier != nil {
		if _, err := s.cron.AddFunc(s.cfg.Alerts.CronSchedule, s.scanLowStock); err != nil {
			s.logger.Error("failed to schedule low-stock scan", zap.Error(err))
		}
	}

	if _, err := s.cron.AddFunc(s.cfg.Alerts.BackupCronSchedule, s.exportBackup); err != nil {
		s.logger.Error("failed to schedule backup export", zap.Error(err))
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) scanLowStock() {
	data := s.ctrl.Snapshot()

	low := make([]models.Product, 0)
	for _, p := range data.Products {
		if p.CurrentStock <= p.MinStock {
			low = append(low, p)
		}
	}
	if len(low) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.notifier.SendLowStockAlert(ctx, low); err != nil {
		s.logger.Error("failed to send low-stock alert", zap.Error(err))
		return
	}
	s.logger.Info("low-stock alert sent", zap.Int("products", len(low)))
}

func (s *Scheduler) exportBackup() {
	payload, name, err := s.ctrl.Export()
	if err != nil {
		s.logger.Error("failed to build backup export", zap.Error(err))
		return
	}

	if err := os.MkdirAll(s.cfg.Local.BackupDir, 0o755); err != nil {
		s.logger.Error("failed to create backup directory", zap.Error(err))
		return
	}

	path := filepath.Join(s.cfg.Local.BackupDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		s.logger.Error("failed to write backup file", zap.Error(err))
		return
	}
	s.logger.Info("backup exported", zap.String("path", path))
}
