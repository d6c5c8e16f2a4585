package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/erpbridge/platform/pkg/common/config"
	"github.com/erpbridge/platform/pkg/common/database"
	"github.com/erpbridge/platform/pkg/common/kafka"
	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/coupa"
	"github.com/erpbridge/platform/pkg/filedrop"
	"github.com/erpbridge/platform/pkg/integration"
	"github.com/erpbridge/platform/pkg/modules"
	"github.com/erpbridge/platform/pkg/notify"
	"github.com/erpbridge/platform/pkg/scheduler"
	"github.com/erpbridge/platform/pkg/staging"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	headerRepo := staging.NewContractHeaderRepository(db)
	itemRepo := staging.NewSupplierItemRepository(db)
	rateRepo := staging.NewExchangeRateRepository(db)
	ledgerRepo := integration.NewRepository(db)
	if err := headerRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate contract header staging")
	}
	if err := itemRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate supplier item staging")
	}
	if err := rateRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate exchange rate staging")
	}
	if err := ledgerRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate integration ledger")
	}

	redisClient := database.GetRedis()
	producer := kafka.NewProducer(cfg.KafkaRunTopic)
	defer producer.Close()

	coupaClient := coupa.NewClient(cfg, redisClient)
	mailer := notify.NewMailer(cfg)
	service := integration.NewService(ledgerRepo, producer, mailer)

	moduleSet := modules.NewSet(cfg, headerRepo, itemRepo, rateRepo, coupaClient, func() (modules.DropClient, error) {
		return filedrop.Dial(cfg)
	})

	location, err := time.LoadLocation(cfg.SchedulerTimezone)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid scheduler timezone")
	}
	sched := scheduler.New(service, moduleSet.Registry(), location)

	ctx := context.Background()
	if err := integration.SeedFromFile(ctx, ledgerRepo, cfg.SeedConfigPath); err != nil {
		logger.Log.WithError(err).Fatal("failed to seed module configurations")
	}
	configs, err := ledgerRepo.ListConfigs(ctx)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load module configurations")
	}
	if err := sched.Initialize(configs); err != nil {
		logger.Log.WithError(err).Fatal("failed to initialize scheduler")
	}

	handler := integration.NewHandler(ledgerRepo, sched)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1/integration").Subrouter()
	handler.Register(api)

	stagingAPI := router.PathPrefix("/api/v1/staging").Subrouter()
	staging.NewHandler(headerRepo, itemRepo).Register(stagingAPI)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Integration hub listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start integration hub")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down integration hub...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// stop the timers first so no new runs start while the server drains
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("scheduler did not stop cleanly")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("integration hub forced to shutdown")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}
	logger.Log.Info("Integration hub stopped")
}
