package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/notification"
	"github.com/janhq/transcription-api/internal/infrastructure/metrics"
)

// envelope is the pub/sub message shared by publishers and relays.
type envelope struct {
	OwnerID string             `json:"ownerId"`
	Event   notification.Event `json:"event"`
}

// RedisPublisher forwards events to a Redis channel so that every API
// process can deliver them to its own connections.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

var _ notification.Emitter = (*RedisPublisher)(nil)

func NewRedisPublisher(client *redis.Client, channel string, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     log.With().Str("component", "notifier-publisher").Logger(),
	}
}

func (p *RedisPublisher) EmitToOwner(ctx context.Context, ownerID string, event notification.Event) {
	data, err := json.Marshal(envelope{OwnerID: ownerID, Event: event})
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("encode").Inc()
		p.log.Error().Err(err).Str("event", string(event.Kind)).Msg("failed to encode event")
		return
	}
	// Publishing must not be skipped because the job context is ending.
	if err := p.client.Publish(context.WithoutCancel(ctx), p.channel, data).Err(); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("publish").Inc()
		p.log.Warn().Err(err).Str("owner_id", ownerID).Str("event", string(event.Kind)).Msg("failed to publish event")
	}
}

// RedisRelay subscribes to the channel and hands events to a local emitter.
type RedisRelay struct {
	client  *redis.Client
	channel string
	target  notification.Emitter
	log     zerolog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, target notification.Emitter, log zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		target:  target,
		log:     log.With().Str("component", "notifier-relay").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Msg("relaying notifier events")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.dispatch(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) dispatch(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("decode").Inc()
		r.log.Warn().Err(err).Msg("discarding malformed notifier message")
		return
	}
	if env.OwnerID == "" {
		return
	}
	r.target.EmitToOwner(ctx, env.OwnerID, env.Event)
}
