package handlers

import (
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/config"
)

// Provider wires HTTP handlers.
type Provider struct {
	Media  *MediaHandler
	Events *EventsHandler
	Queues *QueueHandler
}

func NewProvider(cfg *config.Config, service MediaService, registry ConnectionRegistry, queue QueueCounter, log zerolog.Logger) *Provider {
	return &Provider{
		Media:  NewMediaHandler(cfg, service, log),
		Events: NewEventsHandler(registry, log),
		Queues: NewQueueHandler(queue),
	}
}
