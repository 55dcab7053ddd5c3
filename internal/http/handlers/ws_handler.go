package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/auth"
	"github.com/chainbid/relay/internal/events"
)

// WSHub fans relay events out to connected operator dashboards.
type WSHub struct {
	jwtSecret  string
	subscriber events.Subscriber
	log        *zap.Logger

	mu          sync.RWMutex
	connections map[*websocket.Conn]struct{}
}

func NewWSHub(jwtSecret string, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:   jwtSecret,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[*websocket.Conn]struct{}),
	}
}

// Start attaches the hub to the event stream. Without a subscriber (no
// redis) the hub still accepts connections but only sees local silence.
func (h *WSHub) Start(ctx context.Context) {
	if h.subscriber == nil {
		return
	}
	_ = h.subscriber.Subscribe(ctx, events.StreamRelay, func(event events.Event) {
		h.Broadcast(event)
	})
}

func (h *WSHub) Broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	if _, err := auth.ParseOperatorJWT(h.jwtSecret, tokenStr); err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	h.mu.Lock()
	h.connections[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.connections, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
