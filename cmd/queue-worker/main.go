package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchfabric/connectors/pkg/common/config"
	"github.com/searchfabric/connectors/pkg/common/database"
	"github.com/searchfabric/connectors/pkg/common/kafka"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/queue"
	"github.com/searchfabric/connectors/pkg/source"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	sourceRepo := source.NewRepository(db)
	eventRepo := queue.NewPostgresRepository(db)
	if err := eventRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate event tables")
	}

	indexProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.IndexTopic)
	defer indexProducer.Close()

	var dlqProducer *kafka.Producer
	if cfg.DeadLetterTopic != "" {
		dlqProducer = kafka.NewProducer(cfg.KafkaBrokers, cfg.DeadLetterTopic)
		defer dlqProducer.Close()
	}

	backoff := queue.BackoffConfig{BaseDelay: cfg.BackoffBaseDelay, MaxDelay: cfg.BackoffMaxDelay}
	queueSvc := queue.NewService(eventRepo, sourceRepo, cfg.QueueMaxRetries, backoff)

	processor := queue.NewIndexProcessor(indexProducer)

	var dlq queue.Publisher
	if dlqProducer != nil {
		dlq = dlqProducer
	}
	worker := queue.NewWorker(queueSvc, processor, dlq, queue.WorkerConfig{
		Concurrency:  cfg.WorkerConcurrency,
		BatchSize:    cfg.WorkerBatchSize,
		PollInterval: cfg.WorkerPollInterval,
		IdleDelay:    cfg.WorkerIdleDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())

	// optional broker intake: adapters may publish events to a topic
	// instead of (or alongside) the HTTP intake
	if cfg.IngestTopic != "" {
		ingestConsumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.IngestTopic, cfg.IngestGroupID)
		defer ingestConsumer.Close()
		go func() {
			if err := ingestConsumer.Consume(ctx, queue.IngestHandler(queueSvc)); err != nil && ctx.Err() == nil {
				logger.Log.WithError(err).Error("ingest consumer stopped")
			}
		}()
		logger.Log.WithField("topic", cfg.IngestTopic).Info("broker intake enabled")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("Shutting down Queue Worker...")
		cancel()
	}()

	logger.Log.WithFields(map[string]interface{}{
		"concurrency": cfg.WorkerConcurrency,
		"batch_size":  cfg.WorkerBatchSize,
	}).Info("Queue Worker started")

	worker.Run(ctx)

	database.ClosePostgres()
	logger.Log.Info("Queue Worker stopped")
}
