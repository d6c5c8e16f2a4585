package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/integration"
	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron timers for the integration modules. Each module
// name has at most one timer at any moment; Apply replaces rather than
// stacks.
type Scheduler struct {
	cron     *cron.Cron
	service  *integration.Service
	registry map[string]integration.Func

	mu   sync.Mutex
	jobs map[string]jobEntry
}

type jobEntry struct {
	id       cron.EntryID
	interval string
}

func New(service *integration.Service, registry map[string]integration.Func, location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		service:  service,
		registry: registry,
		jobs:     make(map[string]jobEntry),
	}
}

// Initialize applies the given configurations and starts the timers.
// A configuration whose module name has no registered function is skipped
// with a warning; a bad interval in stored state is an error.
func (s *Scheduler) Initialize(configs []models.IntegrationConfiguration) error {
	for _, cfg := range configs {
		if _, ok := s.registry[cfg.ModuleName]; !ok {
			logger.WithModule(cfg.ModuleName).Warn("Configuration has no registered module, skipping")
			continue
		}
		if err := s.Apply(cfg); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", cfg.ModuleName, err)
		}
	}
	s.cron.Start()
	logger.WithField("jobs", len(s.jobs)).Info("Scheduler started")
	return nil
}

// Apply reconciles one module's timer with its configuration: active means
// one timer at the configured interval, inactive means no timer. Any existing
// timer for the module is removed first.
func (s *Scheduler) Apply(cfg models.IntegrationConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.jobs[cfg.ModuleName]; ok {
		s.cron.Remove(entry.id)
		delete(s.jobs, cfg.ModuleName)
	}
	if !cfg.IsActive {
		logger.WithModule(cfg.ModuleName).Info("Module unscheduled")
		return nil
	}

	fn, ok := s.registry[cfg.ModuleName]
	if !ok {
		return fmt.Errorf("%w: %s", integration.ErrModuleNotConfigured, cfg.ModuleName)
	}
	schedule, err := ParseInterval(cfg.ExecutionInterval)
	if err != nil {
		return err
	}

	moduleName := cfg.ModuleName
	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.runScheduled(moduleName, fn)
	}))
	s.jobs[moduleName] = jobEntry{id: id, interval: cfg.ExecutionInterval}
	logger.WithFields(map[string]interface{}{
		"module":   moduleName,
		"interval": cfg.ExecutionInterval,
	}).Info("Module scheduled")
	return nil
}

// runScheduled is the timer-fired path. An overlapping run is a skip, not a
// failure: the previous tick is still working.
func (s *Scheduler) runScheduled(moduleName string, fn integration.Func) {
	_, err := s.service.Execute(context.Background(), moduleName, fn)
	switch {
	case err == nil:
	case errors.Is(err, integration.ErrRunInProgress):
		logger.WithModule(moduleName).Warn("Skipping tick, previous run still in progress")
	case errors.Is(err, integration.ErrModuleInactive), errors.Is(err, integration.ErrModuleNotConfigured):
		logger.WithModule(moduleName).Warn("Scheduled module no longer runnable")
	default:
		logger.WithFields(map[string]interface{}{
			"module": moduleName,
			"error":  err.Error(),
		}).Error("Scheduled run failed")
	}
}

// Trigger starts a manual run asynchronously. The run slot is reserved
// before returning, so a trigger racing a timer tick gets ErrRunInProgress
// here rather than an accepted run that silently never starts. The caller
// learns whether the run began, not how it ended; the ledger carries the
// outcome.
func (s *Scheduler) Trigger(moduleName string) error {
	fn, ok := s.registry[moduleName]
	if !ok {
		return fmt.Errorf("%w: %s", integration.ErrModuleNotConfigured, moduleName)
	}
	if err := s.service.Reserve(context.Background(), moduleName); err != nil {
		return err
	}
	go func() {
		if _, err := s.service.ExecuteReserved(context.Background(), moduleName, fn); err != nil {
			logger.WithFields(map[string]interface{}{
				"module": moduleName,
				"error":  err.Error(),
			}).Error("Manual run failed")
		}
	}()
	logger.WithModule(moduleName).Info("Manual run triggered")
	return nil
}

// Jobs reports the currently scheduled modules.
func (s *Scheduler) Jobs() []integration.JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]integration.JobInfo, 0, len(s.jobs))
	for moduleName, entry := range s.jobs {
		infos = append(infos, integration.JobInfo{
			ModuleName: moduleName,
			Interval:   entry.interval,
			NextRun:    s.cron.Entry(entry.id).Next,
			Running:    s.service.Running(moduleName),
		})
	}
	return infos
}

// Stop halts the timers and waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
