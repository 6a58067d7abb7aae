package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleet-monitor/telemetry/internal/broadcast"
)

// Conn adapts one upgraded WebSocket to a broadcast connection.
type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

var _ broadcast.Conn = (*Conn)(nil)

func newConn(id string, ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{id: id, ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Send(ctx context.Context, msg broadcast.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg.Payload)
}

// close sends a close frame and drops the socket. WriteControl is safe
// alongside a data write, so a writer stuck on a slow peer cannot block it.
func (c *Conn) close(code int, text string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	_ = c.ws.Close()
}
