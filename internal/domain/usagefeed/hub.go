package usagefeed

import (
	"context"
	"expvar"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/helpmaton/billing-api/internal/domain/ledger"
)

var (
	wsConnectionsGauge   = expvar.NewInt("usagefeed_connections")
	wsEventsSentTotal    = expvar.NewInt("usagefeed_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("usagefeed_events_dropped_total")
)

// Connection is one WebSocket subscriber to a workspace's ledger feed.
type Connection struct {
	WorkspaceID uuid.UUID
	Conn        *websocket.Conn
	Send        chan []byte
}

// Hub fans ledger events out to WebSocket subscribers. Events arrive over
// Redis Pub/Sub, so every API instance sees appends made by any instance.
// The feed is read-only: the hub never writes to the ledger.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool

	redis  *redis.Client
	pubsub *redis.PubSub

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
	}

	if redisClient != nil {
		h.pubsub = redisClient.PSubscribe(ctx, ledger.EventChannelPattern)
	}

	return h
}

// Run starts the hub (call in goroutine).
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.WorkspaceID] == nil {
				h.connections[conn.WorkspaceID] = make(map[*Connection]bool)
			}
			h.connections[conn.WorkspaceID][conn] = true
			h.mu.Unlock()
			wsConnectionsGauge.Add(1)

			log.Debug().Str("workspace_id", conn.WorkspaceID.String()).Msg("usage feed subscriber connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.WorkspaceID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					wsConnectionsGauge.Add(-1)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.WorkspaceID)
				}
			}
			h.mu.Unlock()

			log.Debug().Str("workspace_id", conn.WorkspaceID.String()).Msg("usage feed subscriber disconnected")
		}
	}
}

// runRedisSubscriber forwards ledger events from Redis to local subscribers.
func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			idx := strings.LastIndexByte(msg.Channel, ':')
			if idx < 0 {
				continue
			}
			workspaceID, err := uuid.Parse(msg.Channel[idx+1:])
			if err != nil {
				continue
			}

			h.broadcastLocal(workspaceID, []byte(msg.Payload))
		}
	}
}

// broadcastLocal delivers a raw event to subscribers on THIS instance.
func (h *Hub) broadcastLocal(workspaceID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections[workspaceID] {
		select {
		case conn.Send <- payload:
			wsEventsSentTotal.Add(1)
		default:
			// Buffer full, skip this event
			wsEventsDroppedTotal.Add(1)
			log.Warn().Str("workspace_id", workspaceID.String()).Msg("usage feed send buffer full")
		}
	}
}

// Register adds a subscriber.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// SubscriberCount returns the number of local connections.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown gracefully shuts down the hub.
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
