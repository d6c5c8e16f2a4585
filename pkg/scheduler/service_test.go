package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/integration"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func init() {
	logger.Init()
}

type memStore struct {
	mu      sync.Mutex
	configs map[string]models.IntegrationConfiguration
}

func (m *memStore) GetConfig(_ context.Context, moduleName string) (models.IntegrationConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[moduleName]
	if !ok {
		return models.IntegrationConfiguration{}, gorm.ErrRecordNotFound
	}
	return cfg, nil
}

func (m *memStore) CreateRun(_ context.Context, moduleName string) (models.IntegrationRun, error) {
	return models.IntegrationRun{ID: uuid.New(), ModuleName: moduleName, Status: models.StatusRunning, StartedAt: time.Now().UTC()}, nil
}

func (m *memStore) CompleteRun(context.Context, uuid.UUID, models.RunStatus, models.ModuleResult, time.Duration) error {
	return nil
}

func (m *memStore) BulkInsertErrors(context.Context, uuid.UUID, []models.ErrorDetail) error {
	return nil
}

func (m *memStore) ListActiveRecipients(context.Context, string) ([]models.NotificationRecipient, error) {
	return nil, nil
}

func schedConfig(moduleName, interval string, active bool) models.IntegrationConfiguration {
	return models.IntegrationConfiguration{
		ModuleName:        moduleName,
		ExecutionInterval: interval,
		IsActive:          active,
	}
}

func newTestScheduler(registry map[string]integration.Func, configs ...models.IntegrationConfiguration) (*Scheduler, *memStore) {
	store := &memStore{configs: make(map[string]models.IntegrationConfiguration)}
	for _, cfg := range configs {
		store.configs[cfg.ModuleName] = cfg
	}
	svc := integration.NewService(store, nil, nil)
	return New(svc, registry, time.UTC), store
}

func noopModule(context.Context, models.IntegrationConfiguration) (models.ModuleResult, error) {
	return models.ModuleResult{}, nil
}

func TestApplyKeepsOneTimerPerModule(t *testing.T) {
	registry := map[string]integration.Func{"exchange-rate": noopModule}
	sched, _ := newTestScheduler(registry, schedConfig("exchange-rate", "every 30 minutes", true))

	if err := sched.Apply(schedConfig("exchange-rate", "every 30 minutes", true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sched.Apply(schedConfig("exchange-rate", "every 5 minutes", true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := sched.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("rescheduling must replace, not stack: got %d jobs", len(jobs))
	}
	if jobs[0].Interval != "every 5 minutes" {
		t.Fatalf("expected updated interval, got %q", jobs[0].Interval)
	}
}

func TestApplyInactiveRemovesTimer(t *testing.T) {
	registry := map[string]integration.Func{"exchange-rate": noopModule}
	sched, _ := newTestScheduler(registry, schedConfig("exchange-rate", "every 30 minutes", true))

	if err := sched.Apply(schedConfig("exchange-rate", "every 30 minutes", true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sched.Apply(schedConfig("exchange-rate", "every 30 minutes", false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs := sched.Jobs(); len(jobs) != 0 {
		t.Fatalf("inactive module must have no timer, got %d jobs", len(jobs))
	}
}

func TestApplyRejectsBadInterval(t *testing.T) {
	registry := map[string]integration.Func{"exchange-rate": noopModule}
	sched, _ := newTestScheduler(registry)

	err := sched.Apply(schedConfig("exchange-rate", "whenever convenient", true))
	if !errors.Is(err, integration.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	if jobs := sched.Jobs(); len(jobs) != 0 {
		t.Fatalf("failed apply must not leave a timer, got %d jobs", len(jobs))
	}
}

func TestInitializeSkipsUnregisteredModules(t *testing.T) {
	registry := map[string]integration.Func{"exchange-rate": noopModule}
	sched, _ := newTestScheduler(registry)

	configs := []models.IntegrationConfiguration{
		schedConfig("exchange-rate", "every 30 minutes", true),
		schedConfig("retired-module", "every 30 minutes", true),
	}
	if err := sched.Initialize(configs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sched.Stop(context.Background())

	jobs := sched.Jobs()
	if len(jobs) != 1 || jobs[0].ModuleName != "exchange-rate" {
		t.Fatalf("expected only the registered module scheduled, got %+v", jobs)
	}
	if jobs[0].NextRun.IsZero() {
		t.Fatal("started scheduler must report a next fire time")
	}
}

func TestTriggerRunsModule(t *testing.T) {
	ran := make(chan string, 1)
	registry := map[string]integration.Func{
		"contracts-header-ingest": func(_ context.Context, cfg models.IntegrationConfiguration) (models.ModuleResult, error) {
			ran <- cfg.ModuleName
			return models.ModuleResult{SuccessCount: 1, TotalRecords: 1}, nil
		},
	}
	sched, _ := newTestScheduler(registry, schedConfig("contracts-header-ingest", "every 30 minutes", true))

	if err := sched.Trigger("contracts-header-ingest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case name := <-ran:
		if name != "contracts-header-ingest" {
			t.Fatalf("wrong module ran: %s", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("triggered module did not run")
	}
}

func TestTriggerUnknownModule(t *testing.T) {
	sched, _ := newTestScheduler(map[string]integration.Func{})
	if err := sched.Trigger("no-such-module"); !errors.Is(err, integration.ErrModuleNotConfigured) {
		t.Fatalf("expected ErrModuleNotConfigured, got %v", err)
	}
}

func TestTriggerInactiveModule(t *testing.T) {
	registry := map[string]integration.Func{"exchange-rate": noopModule}
	sched, _ := newTestScheduler(registry, schedConfig("exchange-rate", "every 30 minutes", false))

	if err := sched.Trigger("exchange-rate"); !errors.Is(err, integration.ErrModuleInactive) {
		t.Fatalf("expected ErrModuleInactive, got %v", err)
	}
}

func TestTriggerWhileRunning(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	registry := map[string]integration.Func{
		"exchange-rate": func(context.Context, models.IntegrationConfiguration) (models.ModuleResult, error) {
			close(started)
			<-block
			return models.ModuleResult{}, nil
		},
	}
	sched, _ := newTestScheduler(registry, schedConfig("exchange-rate", "every 30 minutes", true))

	if err := sched.Trigger("exchange-rate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started
	defer close(block)

	if err := sched.Trigger("exchange-rate"); !errors.Is(err, integration.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestTriggerReservesSlotBeforeReturning(t *testing.T) {
	block := make(chan struct{})
	registry := map[string]integration.Func{
		"exchange-rate": func(context.Context, models.IntegrationConfiguration) (models.ModuleResult, error) {
			<-block
			return models.ModuleResult{}, nil
		},
	}
	sched, _ := newTestScheduler(registry, schedConfig("exchange-rate", "every 30 minutes", true))

	if err := sched.Trigger("exchange-rate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer close(block)

	// the slot is held as soon as Trigger returns, so a back-to-back second
	// trigger is rejected even if the first run goroutine has not started yet
	if err := sched.Trigger("exchange-rate"); !errors.Is(err, integration.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}
