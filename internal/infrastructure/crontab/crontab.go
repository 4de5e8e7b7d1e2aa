package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/infrastructure/metrics"
	"github.com/janhq/transcription-api/internal/infrastructure/queue"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

const (
	CronJobTimeout = 2 * time.Minute

	everyMinute = "* * * * *"
	hourly      = "0 * * * *"
)

// Crontab schedules queue housekeeping: stalled-job recovery, retention
// pruning and the queue depth gauges.
type Crontab struct {
	ctab      *crontab.Crontab
	queue     queue.Queue
	retention time.Duration
	log       zerolog.Logger
}

func NewCrontab(q queue.Queue, retention time.Duration, log zerolog.Logger) *Crontab {
	return &Crontab{
		ctab:      crontab.New(),
		queue:     q,
		retention: retention,
		log:       log.With().Str("component", "crontab").Logger(),
	}
}

func (c *Crontab) Run(ctx context.Context) error {
	// execute once on start so jobs orphaned by a previous crash are picked up promptly
	c.recoverStalled(ctx)
	c.refreshQueueGauges(ctx)

	jobs := []struct {
		spec string
		name string
		fn   func(context.Context)
	}{
		{everyMinute, "recover stalled jobs", c.recoverStalled},
		{everyMinute, "refresh queue gauges", c.refreshQueueGauges},
		{hourly, "prune completed jobs", c.pruneCompleted},
	}
	for _, j := range jobs {
		fn := j.fn
		if err := c.ctab.AddJob(j.spec, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
			defer cancel()
			fn(jobCtx)
		}); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add "+j.name+" job")
		}
	}
	c.log.Info().Dur("retention", c.retention).Msg("queue maintenance scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) recoverStalled(ctx context.Context) {
	recovered, err := c.queue.RecoverStalled(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("stalled job recovery failed")
		return
	}
	if recovered > 0 {
		metrics.StalledJobsRecoveredTotal.Add(float64(recovered))
		c.log.Warn().Int64("jobs", recovered).Msg("recovered stalled jobs")
	}
}

func (c *Crontab) pruneCompleted(ctx context.Context) {
	if c.retention <= 0 {
		return
	}
	pruned, err := c.queue.PruneCompleted(ctx, time.Now().UTC().Add(-c.retention))
	if err != nil {
		c.log.Error().Err(err).Msg("completed job pruning failed")
		return
	}
	if pruned > 0 {
		c.log.Info().Int64("jobs", pruned).Msg("pruned completed jobs")
	}
}

func (c *Crontab) refreshQueueGauges(ctx context.Context) {
	for _, jobType := range job.Types() {
		counts, err := c.queue.Counts(ctx, jobType)
		if err != nil {
			c.log.Warn().Err(err).Str("job_type", string(jobType)).Msg("failed to read queue counts")
			continue
		}
		for _, state := range job.States() {
			metrics.QueueJobs.WithLabelValues(string(jobType), string(state)).Set(float64(counts[state]))
		}
	}
}
