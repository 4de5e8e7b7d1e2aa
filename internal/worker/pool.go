package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/infrastructure/queue"
)

// Config contains worker pool configuration.
type Config struct {
	Type         job.Type
	Concurrency  int
	PollInterval time.Duration
	// LeaseTimeout bounds a single job run and how long the job stays reserved.
	LeaseTimeout time.Duration
}

// Pool runs Concurrency workers that consume one job type.
type Pool struct {
	queue   queue.Queue
	handler job.Handler
	cfg     Config
	log     zerolog.Logger
}

// NewPool creates a new worker pool.
func NewPool(q queue.Queue, handler job.Handler, cfg Config, log zerolog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 10 * time.Minute
	}
	return &Pool{
		queue:   q,
		handler: handler,
		cfg:     cfg,
		log:     log.With().Str("component", "worker-pool").Str("job_type", string(cfg.Type)).Logger(),
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info().Int("concurrency", p.cfg.Concurrency).Msg("starting worker pool")

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		w := newWorker(i+1, p.queue, p.handler, p.cfg, p.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	p.log.Info().Msg("worker pool stopped")
	return nil
}
