package notifier

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/janhq/transcription-api/internal/utils/idgen"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxReadBytes   = 4096
)

// Upgrader accepts websocket connections from any origin; admission is decided by the auth token.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketConn adapts a gorilla websocket to Conn. Writes go through a
// buffered channel drained by a single writer.
type WebSocketConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{
		id:   idgen.NewConnID(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *WebSocketConn) ID() string { return c.id }

func (c *WebSocketConn) Send(msg []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *WebSocketConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Serve pumps messages until the client goes away, ctx ends or Close is called.
func (c *WebSocketConn) Serve(ctx context.Context) {
	defer c.ws.Close()

	go c.readLoop()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-ctx.Done():
			c.writeClose()
			return
		case <-c.done:
			c.writeClose()
			return
		}
	}
}

// readLoop discards client frames and notices disconnects.
func (c *WebSocketConn) readLoop() {
	defer c.Close()
	c.ws.SetReadLimit(maxReadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WebSocketConn) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
