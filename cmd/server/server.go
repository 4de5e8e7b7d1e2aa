package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/transcription-api/internal/config"
	"github.com/janhq/transcription-api/internal/infrastructure/crontab"
	"github.com/janhq/transcription-api/internal/infrastructure/logger"
	"github.com/janhq/transcription-api/internal/infrastructure/notifier"
	"github.com/janhq/transcription-api/internal/infrastructure/observability"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver"
)

// Application runs the HTTP API, the worker pools and queue maintenance.
// Any of them may be absent depending on the process role.
type Application struct {
	httpServer *httpserver.HttpServer
	pools      workerPools
	relay      *notifier.RedisRelay
	crontab    *crontab.Crontab
	hub        *notifier.Hub
	log        zerolog.Logger
}

func NewApplication(
	httpServer *httpserver.HttpServer,
	pools workerPools,
	relay *notifier.RedisRelay,
	cron *crontab.Crontab,
	hub *notifier.Hub,
	log zerolog.Logger,
) *Application {
	return &Application{
		httpServer: httpServer,
		pools:      pools,
		relay:      relay,
		crontab:    cron,
		hub:        hub,
		log:        log,
	}
}

// Start blocks until ctx is cancelled or a component fails.
func (a *Application) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		eg.Go(func() error { return a.httpServer.Run(ctx) })
	}
	if a.relay != nil {
		eg.Go(func() error { return a.relay.Run(ctx) })
	}
	for _, pool := range a.pools {
		pool := pool
		eg.Go(func() error { return pool.Run(ctx) })
	}
	if a.crontab != nil {
		eg.Go(func() error { return a.crontab.Run(ctx) })
	}

	err := eg.Wait()
	a.hub.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "transcription-api",
	Short: "Transcription and summarization job orchestration service",
	Long: `transcription-api accepts audio and video uploads, runs transcription and
summarization as retryable background jobs and pushes status changes to the
owner's live connections.

Process roles are selected with API_ENABLED and WORKERS_ENABLED.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, worker pools and queue maintenance",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	app, cleanup, err := buildApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	defer cleanup()

	log.Info().
		Bool("api", cfg.APIEnabled).
		Bool("workers", cfg.WorkersEnabled).
		Str("queue", cfg.QueueBackend).
		Str("records", cfg.RecordStoreBackend).
		Str("storage", cfg.StorageBackend).
		Str("notifier", cfg.NotifierBackend).
		Msg("starting transcription-api")

	if err := app.Start(ctx); err != nil {
		log.Error().Err(err).Msg("application stopped with error")
		return err
	}

	log.Info().Msg("application exited cleanly")
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.UsesPostgres() {
		return fmt.Errorf("no component is configured to use postgres")
	}

	log := logger.New(cfg)
	_, closeDB, err := newDatabase(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	closeDB()

	log.Info().Msg("database migrations applied")
	return nil
}

// buildApplication assembles the components by hand in the order Wire would.
func buildApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Application, func(), error) {
		cleanup()
		return nil, nil, err
	}

	db, closeDB, err := newDatabase(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeDB)

	redisClient, closeRedis, err := newRedisClient(ctx, cfg, log)
	if err != nil {
		return fail(fmt.Errorf("connect redis: %w", err))
	}
	cleanups = append(cleanups, closeRedis)

	store, err := newStorage(ctx, cfg, log)
	if err != nil {
		return fail(fmt.Errorf("initialize storage: %w", err))
	}

	validator, closeValidator, err := newAuthValidator(ctx, cfg, log)
	if err != nil {
		return fail(fmt.Errorf("initialize auth validator: %w", err))
	}
	cleanups = append(cleanups, closeValidator)

	repo := newMediaRepository(cfg, db)
	jobQueue := newJobQueue(cfg, db, log)
	locker := newLocker(cfg, redisClient, log)
	hub := notifier.NewHub(log)
	emitter := newEmitter(cfg, hub, redisClient, log)

	service := newMediaService(cfg, repo, store, jobQueue, locker, emitter, log)
	checks := newReadinessChecks(db, redisClient, store)
	httpServer := newHTTPServer(cfg, log, service, hub, jobQueue, validator, checks)

	app := NewApplication(
		httpServer,
		newWorkerPools(cfg, jobQueue, repo, store, emitter, log),
		newRelay(cfg, redisClient, hub, log),
		newCrontab(cfg, jobQueue, log),
		hub,
		log,
	)
	return app, cleanup, nil
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
