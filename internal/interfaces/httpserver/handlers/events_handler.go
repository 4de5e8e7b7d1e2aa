package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/infrastructure/notifier"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver/middlewares"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver/responses"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

// ConnectionRegistry tracks live event connections per owner.
type ConnectionRegistry interface {
	Connect(ownerID string, conn notifier.Conn)
	Disconnect(ownerID, connID string)
}

// EventsHandler streams status events to the authenticated owner.
type EventsHandler struct {
	registry ConnectionRegistry
	log      zerolog.Logger
}

func NewEventsHandler(registry ConnectionRegistry, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		registry: registry,
		log:      log.With().Str("handler", "events").Logger(),
	}
}

// WebSocket upgrades the request and keeps it registered until the client leaves.
func (h *EventsHandler) WebSocket(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	ws, err := notifier.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := notifier.NewWebSocketConn(ws)
	h.registry.Connect(ownerID, conn)
	defer h.registry.Disconnect(ownerID, conn.ID())

	conn.Serve(c.Request.Context())
}

// Stream serves the same events as Server-Sent Events.
func (h *EventsHandler) Stream(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	flusher, ok := middlewares.PrepareSSE(c)
	if !ok {
		responses.HandleNewError(c, platformerrors.ErrorTypeInternal, "Streaming is not supported")
		return
	}
	c.Status(http.StatusOK)
	flusher.Flush()

	conn := notifier.NewSSEConn(c.Writer, flusher)
	h.registry.Connect(ownerID, conn)
	defer h.registry.Disconnect(ownerID, conn.ID())

	conn.Serve(c.Request.Context())
}
