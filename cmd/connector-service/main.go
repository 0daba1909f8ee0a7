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
	"github.com/searchfabric/connectors/pkg/action"
	"github.com/searchfabric/connectors/pkg/common/config"
	"github.com/searchfabric/connectors/pkg/common/database"
	"github.com/searchfabric/connectors/pkg/common/httpclient"
	"github.com/searchfabric/connectors/pkg/common/leader"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/observability/metrics"
	"github.com/searchfabric/connectors/pkg/orchestrator"
	"github.com/searchfabric/connectors/pkg/queue"
	"github.com/searchfabric/connectors/pkg/source"
	"github.com/searchfabric/connectors/pkg/status"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	sourceRepo := source.NewRepository(db)
	if err := sourceRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate source tables")
	}

	eventRepo := queue.NewPostgresRepository(db)
	if err := eventRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate event tables")
	}

	redisClient := database.GetRedis(cfg)

	routes, err := orchestrator.LoadRoutes(cfg.AdapterRoutesPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load adapter routes")
	}

	backoff := queue.BackoffConfig{BaseDelay: cfg.BackoffBaseDelay, MaxDelay: cfg.BackoffMaxDelay}
	queueSvc := queue.NewService(eventRepo, sourceRepo, cfg.QueueMaxRetries, backoff)
	queueHandler := queue.NewHTTPHandler(queueSvc, cfg.MaxRequestBody)

	sourceSvc := source.NewService(sourceRepo)
	sourceHandler := source.NewHTTPHandler(sourceSvc, cfg.MaxRequestBody)

	client := httpclient.New(cfg.SyncTimeout)
	syncSvc := orchestrator.NewService(sourceRepo, routes, client, cfg.SyncTimeout)
	syncHandler := orchestrator.NewHTTPHandler(syncSvc)

	dispatcher := action.NewDispatcher(action.AllowAll{}, sourceRepo, syncSvc, eventRepo, routes, client)
	actionHandler := action.NewHTTPHandler(dispatcher, cfg.MaxRequestBody)

	aggregator := status.NewAggregator(eventRepo, cfg.StatusRecentLimit)
	snapshotCache := status.NewRedisCache(redisClient, 2*cfg.StatusCadence)
	broadcaster := status.NewBroadcaster(aggregator, cfg.StatusCadence, snapshotCache)
	statusHandler := status.NewHTTPHandler(broadcaster, aggregator)

	reaper := queue.NewReaper(queueSvc, cfg.QueueClaimLease, cfg.QueueReaperInterval, leader.NewRedisLock(redisClient))

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	queueHandler.Register(api)
	sourceHandler.Register(api)
	syncHandler.Register(api)
	actionHandler.Register(api)
	statusHandler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go broadcaster.Run(ctx)
	go reaper.Run(ctx)

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Connector Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Connector Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	database.CloseRedis()
	database.ClosePostgres()

	logger.Log.Info("Connector Service stopped")
}
