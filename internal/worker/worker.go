package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/infrastructure/metrics"
	"github.com/janhq/transcription-api/internal/infrastructure/observability"
	"github.com/janhq/transcription-api/internal/infrastructure/queue"
)

const bookkeepingTimeout = 10 * time.Second

// worker reserves and executes jobs of a single type.
type worker struct {
	id      int
	queue   queue.Queue
	handler job.Handler
	cfg     Config
	log     zerolog.Logger
}

func newWorker(id int, q queue.Queue, handler job.Handler, cfg Config, log zerolog.Logger) *worker {
	return &worker{
		id:      id,
		queue:   q,
		handler: handler,
		cfg:     cfg,
		log:     log.With().Int("worker_id", id).Str("component", "worker").Logger(),
	}
}

func (w *worker) run(ctx context.Context) {
	w.log.Debug().Msg("worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything that is ready before sleeping again.
		for ctx.Err() == nil && w.processNext(ctx) {
		}

		select {
		case <-ctx.Done():
			w.log.Debug().Msg("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// processNext runs at most one job and reports whether one was found.
func (w *worker) processNext(ctx context.Context) bool {
	j, err := w.queue.Reserve(ctx, w.cfg.Type, w.cfg.LeaseTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("failed to reserve job")
		}
		return false
	}
	if j == nil {
		return false
	}

	log := w.log.With().
		Str("job_id", j.ID).
		Str("record_id", j.RecordID).
		Str("owner_id", j.OwnerID).
		Int("attempt", j.AttemptsMade).
		Logger()
	log.Info().Msg("processing job")

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.LeaseTimeout)
	jobCtx, span := observability.StartSpan(jobCtx, "job."+string(j.Type),
		attribute.String("job.id", j.ID),
		attribute.String("record.id", j.RecordID),
		attribute.Int("job.attempt", j.AttemptsMade),
	)
	runErr := w.execute(jobCtx, j)
	cancel()
	defer func() { observability.EndSpan(span, runErr) }()

	if runErr != nil && ctx.Err() != nil {
		// Shutdown interrupted the run; the lease expires and stalled recovery requeues it.
		log.Warn().Err(runErr).Msg("job interrupted by shutdown")
		return false
	}

	bookCtx, bookCancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer bookCancel()

	if runErr == nil {
		if err := w.queue.Complete(bookCtx, j); err != nil {
			if errors.Is(err, queue.ErrLeaseLost) {
				log.Warn().Msg("lease expired before completion, job belongs to another run")
				return true
			}
			log.Error().Err(err).Msg("failed to mark job completed")
		}
		span.AddEvent("job.completed")
		metrics.RecordJob(string(j.Type), "completed", time.Since(start))
		log.Info().Dur("duration", time.Since(start)).Msg("job completed")
		return true
	}

	state, err := w.queue.Fail(bookCtx, j, runErr)
	if errors.Is(err, queue.ErrLeaseLost) {
		log.Warn().Err(runErr).Msg("lease expired before the failure was recorded, job belongs to another run")
		return true
	}
	if err != nil {
		log.Error().Err(err).AnErr("cause", runErr).Msg("failed to record job failure")
		return true
	}

	outcome := "retried"
	if state == job.StateFailed {
		outcome = "failed"
	}
	span.AddEvent("job."+outcome, trace.WithAttributes(attribute.String("job.state", string(state))))
	metrics.RecordJob(string(j.Type), outcome, time.Since(start))
	log.Warn().Err(runErr).Str("state", string(state)).Msg("job attempt failed")
	return true
}

// execute turns a handler panic into an ordinary failure.
func (w *worker) execute(ctx context.Context, j *job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Str("job_id", j.ID).Bytes("stack", debug.Stack()).Msgf("job handler panicked: %v", r)
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return w.handler.Handle(ctx, j)
}
