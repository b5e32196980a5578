package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"practice-sync-client/internal/config"
	"practice-sync-client/internal/logger"
)

// Scheduler triggers periodic sync passes once connectivity allows.
type Scheduler struct {
	cfg     config.SchedulerConfig
	engine  *Engine
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, engine *Engine) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		cron:   cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, func() {
		s.triggerSync()
	})
	if err != nil {
		logger.Log.Error("Failed to schedule sync job", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	if s.engine.Running() {
		logger.Log.Info("Sync already running, skipping scheduled pass")
		return
	}

	if _, err := s.engine.Sync(context.Background()); err != nil {
		if errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrOffline) {
			logger.Log.Info("Skipped scheduled sync", zap.Error(err))
			return
		}
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
	}
}
