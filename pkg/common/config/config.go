package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers    []string
	IndexTopic      string
	DeadLetterTopic string
	IngestTopic     string
	IngestGroupID   string

	// Queue
	QueueMaxRetries     int
	QueueClaimLease     time.Duration
	QueueReaperInterval time.Duration
	BackoffBaseDelay    time.Duration
	BackoffMaxDelay     time.Duration

	// Worker
	WorkerConcurrency  int
	WorkerBatchSize    int
	WorkerPollInterval time.Duration
	WorkerIdleDelay    time.Duration

	// Status feed
	StatusCadence     time.Duration
	StatusRecentLimit int

	// Sync orchestration
	SyncTimeout       time.Duration
	AdapterRoutesPath string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "connectors"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "connectors123"),
		PostgresDB:       getEnv("POSTGRES_DB", "connectors"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:    getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		IndexTopic:      getEnv("INDEX_TOPIC", "index-updates"),
		DeadLetterTopic: getEnv("DEAD_LETTER_TOPIC", "connector-events-dlq"),
		IngestTopic:     getEnv("INGEST_TOPIC", ""),
		IngestGroupID:   getEnv("INGEST_GROUP_ID", "connectors-queue-worker"),

		QueueMaxRetries:     getIntEnv("QUEUE_MAX_RETRIES", 3),
		QueueClaimLease:     getDuration("QUEUE_CLAIM_LEASE", 5*time.Minute),
		QueueReaperInterval: getDuration("QUEUE_REAPER_INTERVAL", time.Minute),
		BackoffBaseDelay:    getDuration("BACKOFF_BASE_DELAY", time.Second),
		BackoffMaxDelay:     getDuration("BACKOFF_MAX_DELAY", time.Minute),

		WorkerConcurrency:  getIntEnv("WORKER_CONCURRENCY", 4),
		WorkerBatchSize:    getIntEnv("WORKER_BATCH_SIZE", 10),
		WorkerPollInterval: getDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		WorkerIdleDelay:    getDuration("WORKER_IDLE_DELAY", 800*time.Millisecond),

		StatusCadence:     getDuration("STATUS_CADENCE", 3*time.Second),
		StatusRecentLimit: getIntEnv("STATUS_RECENT_LIMIT", 20),

		SyncTimeout:       getDuration("SYNC_TIMEOUT", 30*time.Second),
		AdapterRoutesPath: getEnv("ADAPTER_ROUTES_PATH", "adapters.yaml"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
