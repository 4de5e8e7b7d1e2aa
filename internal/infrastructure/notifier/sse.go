package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/janhq/transcription-api/internal/utils/idgen"
)

var errConnClosed = errors.New("connection closed")

const sseKeepAlive = 25 * time.Second

// SSEConn streams events as Server-Sent Events over a flushed response.
type SSEConn struct {
	id      string
	w       io.Writer
	flusher http.Flusher
	send    chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewSSEConn(w io.Writer, flusher http.Flusher) *SSEConn {
	return &SSEConn{
		id:      idgen.NewConnID(),
		w:       w,
		flusher: flusher,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

func (c *SSEConn) ID() string { return c.id }

func (c *SSEConn) Send(msg []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *SSEConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Serve writes queued events until ctx ends or the connection is closed.
func (c *SSEConn) Serve(ctx context.Context) {
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case msg := <-c.send:
			if _, err := fmt.Fprintf(c.w, "data: %s\n\n", msg); err != nil {
				c.Close()
				return
			}
			c.flusher.Flush()
		case <-keepAlive.C:
			if _, err := io.WriteString(c.w, ": keep-alive\n\n"); err != nil {
				c.Close()
				return
			}
			c.flusher.Flush()
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		}
	}
}
