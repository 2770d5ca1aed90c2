// Package wsapi is the wire adapter that exposes the Result
// Broadcaster over a websocket, mirroring spec §6's
// "/topic/game/{gameId}/results" subscribe contract. Nothing in the
// retrieved teacher repos wires websockets directly; gorilla/websocket
// is the ecosystem-standard choice for this concern (see DESIGN.md).
package wsapi

import (
	"net/http"

	"luckengine/internal/broadcast"
	"luckengine/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves GET /ws/games/:gameId/results.
type Handler struct {
	hub    *broadcast.Hub
	logger logging.Logger
}

// NewHandler constructs a Handler bound to hub.
func NewHandler(hub *broadcast.Hub, logger logging.Logger) *Handler {
	return &Handler{hub: hub, logger: logging.WithComponent(logger, "wsapi")}
}

// Register mounts the websocket route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/ws/games/:gameId/results", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	gameID := c.Param("gameId")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	results, cancel := h.hub.Subscribe(gameID)
	defer cancel()

	// Drain client-initiated control frames (pings/close) on their own
	// goroutine so a silent client doesn't block outbound publishes.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			if err := conn.WriteJSON(result); err != nil {
				return
			}
		}
	}
}
