// Package broadcast pushes message change events to websocket clients,
// the realtime counterpart of the domain event hub.
package broadcast

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/crmlat/wabot/internal/event"
)

const writeTimeout = 10 * time.Second

// Handler upgrades clients on /ws/webhooks and streams MessageChanged
// events to them.
type Handler struct {
	hub      *event.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the websocket broadcast handler.
func NewHandler(log *slog.Logger, hub *event.Hub) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboard clients connect from other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "broadcast")),
	}
}

// Register registers the websocket route.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws/webhooks", h.Serve)
}

// Serve streams events to one client until it disconnects.
func (h *Handler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := c.Request().Context()
	events, subID := h.hub.Subscribe(ctx)
	defer h.hub.Unsubscribe(subID)

	// Drain client frames so close handshakes are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("client write failed, dropping", slog.Any("error", err))
				return nil
			}
		}
	}
}
