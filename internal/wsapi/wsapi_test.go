package wsapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"luckengine/internal/broadcast"
	"luckengine/internal/logging"
	"luckengine/internal/reward"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestServe_DeliversPublishedResultToClient(t *testing.T) {
	hub := broadcast.NewHub()
	r := gin.New()
	NewHandler(hub, logging.New(logging.Config{Level: "error"})).Register(r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/games/game-1/results"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the subscription before
	// publishing.
	require.Eventually(t, func() bool {
		hub.Publish("game-1", &reward.BatchResult{BatchID: "batch-1"})
		return true
	}, time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var result reward.BatchResult
	require.NoError(t, conn.ReadJSON(&result))
	require.Equal(t, "batch-1", result.BatchID)
}

func TestServe_ClientCloseUnsubscribes(t *testing.T) {
	hub := broadcast.NewHub()
	r := gin.New()
	NewHandler(hub, logging.New(logging.Config{Level: "error"})).Register(r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/games/game-2/results"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()

	require.Eventually(t, func() bool {
		hub.Publish("game-2", &reward.BatchResult{BatchID: "after-close"})
		return true
	}, time.Second, 10*time.Millisecond)
}
