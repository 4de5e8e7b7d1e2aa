package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/transcription-api/internal/config"
	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/domain/notification"
	"github.com/janhq/transcription-api/internal/domain/retry"
	"github.com/janhq/transcription-api/internal/infrastructure/auth"
	"github.com/janhq/transcription-api/internal/infrastructure/crontab"
	"github.com/janhq/transcription-api/internal/infrastructure/database"
	"github.com/janhq/transcription-api/internal/infrastructure/lock"
	"github.com/janhq/transcription-api/internal/infrastructure/notifier"
	"github.com/janhq/transcription-api/internal/infrastructure/queue"
	"github.com/janhq/transcription-api/internal/infrastructure/redisclient"
	mediarepo "github.com/janhq/transcription-api/internal/infrastructure/repository/media"
	"github.com/janhq/transcription-api/internal/infrastructure/storage"
	"github.com/janhq/transcription-api/internal/infrastructure/summarizer"
	"github.com/janhq/transcription-api/internal/infrastructure/transcriber"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver/handlers"
	"github.com/janhq/transcription-api/internal/worker"
)

// workerPools holds one pool per job type.
type workerPools []*worker.Pool

func newDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*gorm.DB, func(), error) {
	if !cfg.UsesPostgres() {
		return nil, func() {}, nil
	}

	var db *gorm.DB
	err := retry.NewExecutor(retry.ConnectPolicy()).Execute(ctx, func(ctx context.Context, attempt int) error {
		conn, err := database.Connect(ctx, database.Config{
			DSN:             cfg.DatabaseURL,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
			LogLevel:        gormlogger.Warn,
		}, log)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("database not reachable yet")
			return err
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		_ = database.Close(db)
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	cleanup := func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}
	return db, cleanup, nil
}

func newRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	client, err := redisclient.Connect(ctx, cfg.RedisURL, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("close redis")
		}
	}
	return client, cleanup, nil
}

func newMediaRepository(cfg *config.Config, db *gorm.DB) media.Repository {
	if cfg.RecordStoreBackend == config.BackendMemory {
		return mediarepo.NewMemoryRepository()
	}
	return mediarepo.NewPostgresRepository(db)
}

func newJobQueue(cfg *config.Config, db *gorm.DB, log zerolog.Logger) queue.Queue {
	if cfg.QueueBackend == config.BackendMemory {
		return queue.NewMemoryQueue(log)
	}
	return queue.NewPostgresQueue(db, log)
}

func newStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (media.Storage, error) {
	if cfg.StorageBackend == config.BackendS3 {
		return storage.NewS3Storage(ctx, cfg, log)
	}
	return storage.NewLocalStorage(cfg.MediaStoragePath, log)
}

func newLocker(cfg *config.Config, client *redis.Client, log zerolog.Logger) media.Locker {
	if client != nil {
		return lock.NewRedsyncLocker(client, cfg.EnqueueLockTTL, log)
	}
	return lock.NewLocalLocker()
}

// newEmitter routes events through Redis when API and workers may live in
// different processes; every API process relays them to its own hub.
func newEmitter(cfg *config.Config, hub *notifier.Hub, client *redis.Client, log zerolog.Logger) notification.Emitter {
	if cfg.NotifierBackend == config.BackendRedis {
		return notifier.NewRedisPublisher(client, cfg.NotifierChannel, log)
	}
	return hub
}

func newRelay(cfg *config.Config, client *redis.Client, hub *notifier.Hub, log zerolog.Logger) *notifier.RedisRelay {
	if cfg.NotifierBackend != config.BackendRedis || !cfg.APIEnabled {
		return nil
	}
	return notifier.NewRedisRelay(client, cfg.NotifierChannel, hub, log)
}

func jobOptions(cfg *config.Config) (transcription, summarization job.Options) {
	policy := retry.Policy{
		MaxAttempts:     cfg.JobMaxAttempts,
		InitialDelay:    cfg.JobBackoffDelay,
		BackoffStrategy: retry.BackoffExponential,
	}
	transcription = job.Options{Retry: policy, RemoveOnComplete: true}
	summarization = job.Options{Retry: policy, RemoveOnComplete: cfg.SummarizationRemoveOnComplete}
	return transcription, summarization
}

func newMediaService(
	cfg *config.Config,
	repo media.Repository,
	store media.Storage,
	q queue.Queue,
	locker media.Locker,
	emitter notification.Emitter,
	log zerolog.Logger,
) *media.Service {
	transcriptionOpts, summarizationOpts := jobOptions(cfg)
	return media.NewService(media.ServiceConfig{
		MaxUploadBytes:       cfg.MaxMediaBytes,
		TranscriptionOptions: transcriptionOpts,
		SummarizationOptions: summarizationOpts,
	}, repo, store, q, locker, emitter, log)
}

func newWorkerPools(
	cfg *config.Config,
	q queue.Queue,
	repo media.Repository,
	store media.Storage,
	emitter notification.Emitter,
	log zerolog.Logger,
) workerPools {
	if !cfg.WorkersEnabled {
		return nil
	}

	transcriptionHandler := worker.NewTranscriptionHandler(
		repo,
		store,
		transcriber.NewClient(cfg.TranscriptionServiceURL, cfg.ExternalCallTimeout),
		emitter,
		worker.TranscriptionConfig{
			CallTimeout:  cfg.ExternalCallTimeout,
			TickInterval: cfg.ProgressTickInterval,
		},
		log,
	)
	summarizationHandler := worker.NewSummarizationHandler(
		repo,
		summarizer.NewClient(cfg.SummarizationServiceURL, cfg.ExternalCallTimeout),
		emitter,
		cfg.ExternalCallTimeout,
		log,
	)

	return workerPools{
		worker.NewPool(q, transcriptionHandler, worker.Config{
			Type:         job.TypeTranscription,
			Concurrency:  cfg.TranscriptionConcurrency,
			PollInterval: cfg.JobPollInterval,
			LeaseTimeout: cfg.JobLeaseTimeout,
		}, log),
		worker.NewPool(q, summarizationHandler, worker.Config{
			Type:         job.TypeSummarization,
			Concurrency:  cfg.SummarizationConcurrency,
			PollInterval: cfg.JobPollInterval,
			LeaseTimeout: cfg.JobLeaseTimeout,
		}, log),
	}
}

func newCrontab(cfg *config.Config, q queue.Queue, log zerolog.Logger) *crontab.Crontab {
	if !cfg.WorkersEnabled {
		return nil
	}
	return crontab.NewCrontab(q, cfg.JobRetention, log)
}

func newAuthValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, func(), error) {
	validator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return validator, validator.Close, nil
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func newReadinessChecks(db *gorm.DB, client *redis.Client, store media.Storage) map[string]httpserver.ReadinessCheck {
	checks := map[string]httpserver.ReadinessCheck{}
	if db != nil {
		checks["database"] = func(ctx context.Context) error { return database.Health(ctx, db) }
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if hc, ok := store.(healthChecker); ok {
		checks["storage"] = hc.Health
	}
	return checks
}

func newHTTPServer(
	cfg *config.Config,
	log zerolog.Logger,
	service *media.Service,
	hub *notifier.Hub,
	q queue.Queue,
	validator *auth.Validator,
	checks map[string]httpserver.ReadinessCheck,
) *httpserver.HttpServer {
	if !cfg.APIEnabled {
		return nil
	}
	provider := handlers.NewProvider(cfg, service, hub, q, log)
	return httpserver.New(cfg, log, provider, validator, checks)
}
