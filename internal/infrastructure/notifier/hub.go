package notifier

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/notification"
	"github.com/janhq/transcription-api/internal/infrastructure/metrics"
)

// Hub delivers events to connections registered in this process.
type Hub struct {
	registry *Registry
	log      zerolog.Logger
}

var _ notification.Emitter = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		registry: NewRegistry(),
		log:      log.With().Str("component", "notifier-hub").Logger(),
	}
}

// Connect registers conn for ownerID.
func (h *Hub) Connect(ownerID string, conn Conn) {
	h.registry.Add(ownerID, conn)
	metrics.LiveConnections.Inc()
	h.log.Info().Str("owner_id", ownerID).Str("conn_id", conn.ID()).Msg("client connected")
}

// Disconnect unregisters the connection. Unknown ids are ignored.
func (h *Hub) Disconnect(ownerID, connID string) {
	if h.registry.Remove(ownerID, connID) {
		metrics.LiveConnections.Dec()
		h.log.Info().Str("owner_id", ownerID).Str("conn_id", connID).Msg("client disconnected")
	}
}

// EmitToOwner sends event to every connection of ownerID. Connections that
// cannot accept the event are closed and dropped.
func (h *Hub) EmitToOwner(_ context.Context, ownerID string, event notification.Event) {
	conns := h.registry.Connections(ownerID)
	if len(conns) == 0 {
		return
	}

	msg, err := json.Marshal(event)
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("encode").Inc()
		h.log.Error().Err(err).Str("event", string(event.Kind)).Msg("failed to encode event")
		return
	}

	for _, conn := range conns {
		if err := conn.Send(msg); err != nil {
			reason := "closed"
			if errors.Is(err, ErrSlowConsumer) {
				reason = "slow_consumer"
			}
			metrics.EventsDroppedTotal.WithLabelValues(reason).Inc()
			h.log.Warn().Err(err).
				Str("owner_id", ownerID).
				Str("conn_id", conn.ID()).
				Str("event", string(event.Kind)).
				Msg("dropping connection")
			h.Disconnect(ownerID, conn.ID())
			conn.Close()
			continue
		}
		metrics.EventsEmittedTotal.WithLabelValues(string(event.Kind)).Inc()
	}

	h.log.Debug().
		Str("owner_id", ownerID).
		Str("event", string(event.Kind)).
		Str("file_id", event.FileID()).
		Int("connections", len(conns)).
		Msg("event emitted")
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	return h.registry.Count()
}

// Close disconnects every client.
func (h *Hub) Close() {
	conns := h.registry.drain()
	for _, conn := range conns {
		conn.Close()
	}
	metrics.LiveConnections.Sub(float64(len(conns)))
}
