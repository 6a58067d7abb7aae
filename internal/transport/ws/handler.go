package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/pkg/log"
)

const DefaultReadLimit = 4096

// Hub is the part of the broadcaster the handler needs.
type Hub interface {
	Connect(c broadcast.Conn) bool
	Disconnect(c broadcast.Conn) bool
}

type Options struct {
	ReadLimit    int64
	WriteTimeout time.Duration
	Logger       log.Logger
}

// Handler upgrades observers and registers them with the hub for as long as
// the socket stays open. Observers only receive; anything they send is read
// and discarded so control frames keep flowing.
type Handler struct {
	hub      Hub
	upgrader websocket.Upgrader
	opts     Options
	log      log.Logger

	conns sync.Map // *Conn -> struct{}
}

func NewHandler(hub Hub, opts Options) *Handler {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opts: opts,
		log:  logger.WithName("ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.log.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(uuid.NewString(), ws, h.opts.WriteTimeout)
	logger := h.log.WithValues("conn", c.ID(), "remote", r.RemoteAddr)

	h.conns.Store(c, struct{}{})
	h.hub.Connect(c)
	logger.Info("observer connected")

	defer func() {
		h.hub.Disconnect(c)
		h.conns.Delete(c)
		_ = ws.Close()
		logger.Info("observer disconnected")
	}()

	ws.SetReadLimit(h.opts.ReadLimit)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", "error", err)
			}
			return
		}
	}
}

// CloseAll closes every open observer socket. http.Server.Shutdown does not
// touch hijacked connections, so this runs alongside it.
func (h *Handler) CloseAll() {
	h.conns.Range(func(k, _ any) bool {
		k.(*Conn).close(websocket.CloseGoingAway, "server shutting down")
		return true
	})
}
