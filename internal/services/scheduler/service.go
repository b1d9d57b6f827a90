package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
)

// jobEntry is one registered maintenance job.
type jobEntry struct {
	name     string
	schedule string
	handler  func() error
	cronID   cron.EntryID
	lastRun  *time.Time
	lastErr  string
}

// Service runs periodic maintenance: sweeping expired login sessions and
// garbage-collecting the storage value log. Schedules use six-field cron
// expressions (seconds included).
type Service struct {
	cron     *cron.Cron
	sessions interfaces.SessionService
	storage  interfaces.StorageManager
	config   *common.SchedulerConfig
	logger   arbor.ILogger

	jobMu   sync.Mutex
	jobs    map[string]*jobEntry
	running bool
}

// NewService creates the maintenance scheduler.
func NewService(sessions interfaces.SessionService, storage interfaces.StorageManager, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		storage:  storage,
		config:   config,
		logger:   logger,
		jobs:     make(map[string]*jobEntry),
	}
}

// Start registers the maintenance jobs and begins the cron loop.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if err := s.register("session-sweep", s.config.SessionSweep, func() error {
		swept := s.sessions.CleanupExpired()
		if swept > 0 {
			s.logger.Info().Int("swept", swept).Msg("Expired sessions swept")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.register("storage-gc", s.config.StorageGCSweep, func() error {
		return s.storage.RunGC()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().
		Str("session_sweep", s.config.SessionSweep).
		Str("storage_gc", s.config.StorageGCSweep).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// register adds a named job with panic recovery around its handler.
func (s *Service) register(name, schedule string, handler func() error) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{name: name, schedule: schedule, handler: handler}
	cronID, err := s.cron.AddFunc(schedule, func() {
		s.execute(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job %s to cron: %w", name, err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

// execute runs one job with panic recovery and status bookkeeping.
func (s *Service) execute(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")
			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.lastErr = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return
	}
	handler := entry.handler
	s.jobMu.Unlock()

	start := time.Now()
	err := handler()

	s.jobMu.Lock()
	now := time.Now()
	entry.lastRun = &now
	if err != nil {
		entry.lastErr = err.Error()
	} else {
		entry.lastErr = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Job execution failed")
	} else {
		s.logger.Debug().
			Str("job_name", name).
			Dur("duration", time.Since(start)).
			Msg("Job execution completed")
	}
}

// IsRunning reports whether the cron loop is active.
func (s *Service) IsRunning() bool {
	return s.running
}
