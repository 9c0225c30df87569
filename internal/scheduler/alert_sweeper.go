package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/carmandale/AIMS-sub000/internal/config"
	"github.com/carmandale/AIMS-sub000/internal/models"
	"github.com/carmandale/AIMS-sub000/internal/repositories"
)

// AlertsProvider evaluates the current drawdown alerts for one user.
// Implemented by the analytics service.
type AlertsProvider interface {
	GetAlerts(ctx context.Context, userID int64, overrides models.AlertThresholdConfig) (*models.AlertsResponse, error)
}

// AlertSink receives triggered alerts. Implemented by the AMQP publisher.
type AlertSink interface {
	Publish(userID int64, alert models.TriggeredAlert) error
}

// AlertSweeper periodically re-evaluates drawdown alerts for users with
// recent snapshots and publishes emergencies, so a portfolio that crossed a
// threshold between dashboard visits still raises an alert.
type AlertSweeper struct {
	snapshots repositories.SnapshotRepository
	alerts    AlertsProvider
	sink      AlertSink
	cfg       config.SchedulerConfig
	logger    *logrus.Logger
	cron      *cron.Cron
}

// NewAlertSweeper creates the sweeper.
func NewAlertSweeper(
	snapshots repositories.SnapshotRepository,
	alerts AlertsProvider,
	sink AlertSink,
	cfg config.SchedulerConfig,
	logger *logrus.Logger,
) *AlertSweeper {
	return &AlertSweeper{
		snapshots: snapshots,
		alerts:    alerts,
		sink:      sink,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start schedules the sweep on the configured cron expression.
func (s *AlertSweeper) Start() error {
	location, err := time.LoadLocation(s.cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", s.cfg.TimeZone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))
	if _, err := s.cron.AddFunc(s.cfg.SweepInterval, s.Sweep); err != nil {
		return fmt.Errorf("invalid sweep interval %q: %w", s.cfg.SweepInterval, err)
	}

	s.cron.Start()
	s.logger.Infof("Alert sweeper started (interval: %s)", s.cfg.SweepInterval)
	return nil
}

// Stop halts the cron schedule, waiting for a running sweep to finish.
func (s *AlertSweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Alert sweeper stopped")
}

// Sweep evaluates every recently active user once.
func (s *AlertSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	since := time.Now().AddDate(0, 0, -s.cfg.SweepLookbackDays)
	userIDs, err := s.snapshots.ActiveUsers(ctx, since)
	if err != nil {
		s.logger.Errorf("Alert sweep failed to list active users: %v", err)
		return
	}

	published := 0
	for _, userID := range userIDs {
		if err := s.sweepUser(ctx, userID); err != nil {
			s.logger.WithField("user_id", userID).Warnf("Alert sweep skipped user: %v", err)
			continue
		}
		published++
	}

	s.logger.WithFields(logrus.Fields{
		"users": len(userIDs),
		"swept": published,
	}).Info("Alert sweep completed")
}

func (s *AlertSweeper) sweepUser(ctx context.Context, userID int64) error {
	response, err := s.alerts.GetAlerts(ctx, userID, models.AlertThresholdConfig{})
	if err != nil {
		return err
	}

	if len(response.Alerts) == 0 {
		return nil
	}

	// Alerts come back ordered highest severity first; publishing only the
	// top one keeps downstream notification volume sane.
	top := response.Alerts[0]
	if err := s.sink.Publish(userID, top); err != nil {
		return fmt.Errorf("publish %s alert: %w", top.Severity, err)
	}

	return nil
}
