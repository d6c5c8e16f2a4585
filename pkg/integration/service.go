package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrModuleNotConfigured = errors.New("integration module is not configured")
	ErrModuleInactive      = errors.New("integration module is inactive")
	ErrRunInProgress       = errors.New("a run for this module is already in progress")
	ErrInvalidInterval     = errors.New("execution interval is not valid")
)

// Func is the contract every integration module implements. Expected
// per-record failures are reported through ModuleResult.Errors; a returned
// error means the module could not do its job at all.
type Func func(ctx context.Context, cfg models.IntegrationConfiguration) (models.ModuleResult, error)

// Store is the ledger surface the service needs; *Repository satisfies it.
type Store interface {
	GetConfig(ctx context.Context, moduleName string) (models.IntegrationConfiguration, error)
	CreateRun(ctx context.Context, moduleName string) (models.IntegrationRun, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, result models.ModuleResult, duration time.Duration) error
	BulkInsertErrors(ctx context.Context, runID uuid.UUID, details []models.ErrorDetail) error
	ListActiveRecipients(ctx context.Context, notificationType string) ([]models.NotificationRecipient, error)
}

// Publisher emits a run-completed event; the Kafka producer satisfies it.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, run models.IntegrationRun) error
}

// Notifier delivers a run report email.
type Notifier interface {
	SendRunReport(ctx context.Context, cfg models.IntegrationConfiguration, run models.IntegrationRun, recipients []models.NotificationRecipient) error
}

// Service wraps module execution with the run ledger, error persistence,
// events and notifications. Publisher and Notifier are optional.
type Service struct {
	store     Store
	publisher Publisher
	notifier  Notifier

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewService(store Store, publisher Publisher, notifier Notifier) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		inFlight:  make(map[string]bool),
	}
}

// acquire marks a module as running; a second run of the same module is
// rejected until release. Different modules run concurrently.
func (s *Service) acquire(moduleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[moduleName] {
		return fmt.Errorf("%w: %s", ErrRunInProgress, moduleName)
	}
	s.inFlight[moduleName] = true
	return nil
}

func (s *Service) release(moduleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, moduleName)
}

// Running reports whether a run for the module is currently in flight.
func (s *Service) Running(moduleName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[moduleName]
}

// Reserve takes the module's run slot after checking that the module is
// configured and active, so a caller can answer "accepted" before running
// asynchronously. A reservation must be consumed with ExecuteReserved, which
// releases the slot when the run ends.
func (s *Service) Reserve(ctx context.Context, moduleName string) error {
	cfg, err := s.store.GetConfig(ctx, moduleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrModuleNotConfigured, moduleName)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration for %s: %w", moduleName, err)
	}
	if !cfg.IsActive {
		return fmt.Errorf("%w: %s", ErrModuleInactive, moduleName)
	}
	return s.acquire(moduleName)
}

// Execute runs one module under the ledger. An overlapping run of the same
// module is rejected with ErrRunInProgress, and missing or inactive
// configurations fail fast; none of these open a run row. A module error or panic
// produces a FAILED run with a single SYSTEM error detail; otherwise the
// terminal status is derived from the result counts.
func (s *Service) Execute(ctx context.Context, moduleName string, fn Func) (models.IntegrationRun, error) {
	if err := s.acquire(moduleName); err != nil {
		return models.IntegrationRun{}, err
	}
	return s.run(ctx, moduleName, fn)
}

// ExecuteReserved runs a module whose slot was already taken with Reserve.
func (s *Service) ExecuteReserved(ctx context.Context, moduleName string, fn Func) (models.IntegrationRun, error) {
	return s.run(ctx, moduleName, fn)
}

func (s *Service) run(ctx context.Context, moduleName string, fn Func) (models.IntegrationRun, error) {
	defer s.release(moduleName)

	cfg, err := s.store.GetConfig(ctx, moduleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.IntegrationRun{}, fmt.Errorf("%w: %s", ErrModuleNotConfigured, moduleName)
	}
	if err != nil {
		return models.IntegrationRun{}, fmt.Errorf("failed to load configuration for %s: %w", moduleName, err)
	}
	if !cfg.IsActive {
		return models.IntegrationRun{}, fmt.Errorf("%w: %s", ErrModuleInactive, moduleName)
	}

	run, err := s.store.CreateRun(ctx, moduleName)
	if err != nil {
		return models.IntegrationRun{}, fmt.Errorf("failed to open run for %s: %w", moduleName, err)
	}
	log := logger.WithFields(map[string]interface{}{
		"module": moduleName,
		"run_id": run.ID.String(),
	})
	log.Info("Integration run started")

	start := time.Now()
	result, execErr := runModule(ctx, cfg, fn)
	duration := time.Since(start)

	status := classify(result, execErr)
	if execErr != nil {
		result.ErrorCount++
		result.Errors = append(result.Errors, models.ErrorDetail{
			FieldName:    "SYSTEM",
			ErrorMessage: execErr.Error(),
		})
	}

	if err := s.store.BulkInsertErrors(ctx, run.ID, result.Errors); err != nil {
		log.WithField("error", err.Error()).Error("Failed to persist run error details")
	}
	if err := s.store.CompleteRun(ctx, run.ID, status, result, duration); err != nil {
		log.WithField("error", err.Error()).Error("Failed to close run ledger entry")
	}

	now := time.Now().UTC()
	run.Status = status
	run.SuccessCount = result.SuccessCount
	run.ErrorCount = result.ErrorCount
	run.TotalRecords = result.TotalRecords
	run.DurationMS = duration.Milliseconds()
	run.CompletedAt = &now

	log.WithFields(map[string]interface{}{
		"status":        string(status),
		"success_count": result.SuccessCount,
		"error_count":   result.ErrorCount,
		"duration_ms":   run.DurationMS,
	}).Info("Integration run completed")

	if s.publisher != nil {
		if err := s.publisher.PublishRunCompleted(ctx, run); err != nil {
			log.WithField("error", err.Error()).Error("Failed to publish run event")
		}
	}
	s.notify(ctx, cfg, run)

	return run, execErr
}

// runModule isolates the module call so a panic inside it becomes an error
// instead of taking the scheduler down.
func runModule(ctx context.Context, cfg models.IntegrationConfiguration, fn Func) (result models.ModuleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module panicked: %v", r)
		}
	}()
	return fn(ctx, cfg)
}

// classify maps a module outcome to the terminal run status. An execution
// error always means FAILED; otherwise zero errors is SUCCESS, a mix of
// successes and errors is PARTIAL, and errors alone are FAILED.
func classify(result models.ModuleResult, execErr error) models.RunStatus {
	switch {
	case execErr != nil:
		return models.StatusFailed
	case result.ErrorCount == 0:
		return models.StatusSuccess
	case result.SuccessCount > 0:
		return models.StatusPartial
	default:
		return models.StatusFailed
	}
}

// notify sends the run report when the configuration's per-outcome flags ask
// for it. Notification failures are logged, never escalated into the run.
func (s *Service) notify(ctx context.Context, cfg models.IntegrationConfiguration, run models.IntegrationRun) {
	if s.notifier == nil || !cfg.EmailNotificationEnabled {
		return
	}
	var wanted bool
	switch run.Status {
	case models.StatusSuccess:
		wanted = cfg.EmailOnSuccess
	case models.StatusFailed:
		wanted = cfg.EmailOnFailure
	case models.StatusPartial:
		wanted = cfg.EmailOnPartial
	}
	if !wanted {
		return
	}
	recipients, err := s.store.ListActiveRecipients(ctx, string(run.Status))
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to load notification recipients")
		return
	}
	if len(recipients) == 0 {
		return
	}
	if err := s.notifier.SendRunReport(ctx, cfg, run, recipients); err != nil {
		logger.WithFields(map[string]interface{}{
			"module": run.ModuleName,
			"error":  err.Error(),
		}).Error("Failed to send run notification")
	}
}
