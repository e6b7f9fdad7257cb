package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"etaanalyzer/internal/config"
	"etaanalyzer/internal/infrastructure"
	"etaanalyzer/pkg/contracts/events"
)

const (
	TypeConnection = events.TypeConnection

	broadcastBuffer = 256
)

// Message is the JSON envelope written to clients
type Message = events.Message

// Hub maintains the set of active clients and broadcasts run events to them.
// It implements operations.WebSocketHub.
type Hub struct {
	clients map[*Client]struct{}

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}

	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *HubMetrics

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
}

// NewHub creates a hub. Call Start before serving connections.
func NewHub(cfg config.WebSocketConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = infrastructure.WithComponent(logger, "websocket.hub")

	metrics, err := NewHubMetrics()
	if err != nil {
		logger.Warn("websocket metrics unavailable", slog.String("error", err.Error()))
	}

	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// the server binds to localhost and serves no browser credentials
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Start runs the hub loop in the background. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.totalConnections.Add(1)

			ctx := client.context()
			h.metrics.RecordConnection(ctx)
			h.logger.InfoContext(ctx, "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			h.deliver(client, Message{
				Type:      TypeConnection,
				Status:    "connected",
				Data:      map[string]string{"client_id": client.id},
				Timestamp: time.Now().Format(time.RFC3339),
			})

		case client := <-h.unregister:
			h.remove(client, "normal")

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				h.deliver(c, msg)
			}
		}
	}
}

// deliver queues msg on the client's send buffer. A client whose buffer
// is full is disconnected.
func (h *Hub) deliver(c *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
		return
	}

	select {
	case c.send <- payload:
		h.messagesSent.Add(1)
		h.metrics.RecordMessageSent(c.context(), msg.Type, int64(len(payload)))
	default:
		h.messagesDropped.Add(1)
		h.metrics.RecordDroppedMessage(c.context(), "client_buffer_full")
		h.logger.WarnContext(c.context(), "client send buffer full, disconnecting",
			slog.String("client_id", c.id))
		h.remove(c, "slow_consumer")
	}
}

func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	duration := time.Since(c.connectedAt)
	h.metrics.RecordDisconnection(c.context(), duration, reason)
	h.logger.InfoContext(c.context(), "client unregistered",
		slog.String("client_id", c.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", duration),
		slog.Int("total_clients", count))
}

// BroadcastUpdate queues an event for every connected client. It never
// blocks: when the queue is full the event is dropped.
func (h *Hub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	msg := Message{
		Type:      eventType,
		Step:      step,
		Status:    status,
		Data:      metadata,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	select {
	case h.broadcast <- msg:
	default:
		h.messagesDropped.Add(1)
		h.metrics.RecordDroppedMessage(context.Background(), "broadcast_queue_full")
		h.logger.Warn("broadcast queue full, dropping event",
			slog.String("type", eventType),
			slog.String("step", step))
	}
}

// ServeHTTP upgrades the request and attaches a client to the hub
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(h, NewConnection(conn), infrastructure.GetTraceID(r.Context()), h.logger)
	h.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// Register adds a client
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

// Unregister removes a client and closes its send buffer
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns the hub counters
func (h *Hub) Stats() map[string]int64 {
	return map[string]int64{
		"active_clients":    int64(h.ClientCount()),
		"total_connections": h.totalConnections.Load(),
		"messages_sent":     h.messagesSent.Load(),
		"messages_dropped":  h.messagesDropped.Load(),
	}
}

// Stop ends the hub loop. The loop closes every client's send buffer on
// its way out, so send buffers are only ever closed by one goroutine.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}
