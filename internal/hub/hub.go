package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"facilitywatch/internal/engine"
	"facilitywatch/internal/logger"
	"facilitywatch/internal/metrics"
	"facilitywatch/internal/models"
)

const (
	broadcastBuffer = 64
	sendBuffer      = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the frame written to websocket clients
type Message struct {
	Type    engine.UpdateKind `json:"type"`
	Payload engine.Update     `json:"payload"`
}

// Source provides the state a newly connected client starts from
type Source interface {
	Equipment() []models.Equipment
	Alerts() []models.Alert
	UnreadCount() int
}

// Hub maintains the set of connected clients and fans engine updates out to
// them. Only the Run goroutine touches the client set.
type Hub struct {
	source Source

	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	connected atomic.Int64

	// newest version queued per update kind
	versionMu sync.Mutex
	latest    map[engine.UpdateKind]uint64
}

// New creates a hub. Call Run before serving connections.
func New(source Source) *Hub {
	return &Hub{
		source:     source,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		latest:     make(map[engine.UpdateKind]uint64),
	}
}

// Run services registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	log := logger.WithComponent("hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			log.Info().Msg("hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setConnected(len(h.clients))
			log.Debug().Str("remote_addr", c.remoteAddr()).Msg("client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				log.Debug().Str("remote_addr", c.remoteAddr()).Msg("client unregistered")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.remove(c)
					metrics.WebsocketDroppedTotal.WithLabelValues("slow_client").Inc()
					log.Warn().Str("remote_addr", c.remoteAddr()).Msg("client send buffer full, disconnecting")
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setConnected(len(h.clients))
}

func (h *Hub) setConnected(n int) {
	h.connected.Store(int64(n))
	metrics.WebsocketClients.Set(float64(n))
}

// Clients returns the number of registered clients
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Broadcast queues an update for every client. It never blocks: when the hub
// is backed up the update is dropped and counted. A versioned update older
// than one already queued for the same kind is dropped as stale.
func (h *Hub) Broadcast(u engine.Update) {
	msg, err := encode(u)
	if err != nil {
		log := logger.WithComponent("hub")
		log.Error().Err(err).Str("type", string(u.Kind)).Msg("failed to encode update")
		return
	}

	h.versionMu.Lock()
	defer h.versionMu.Unlock()
	if u.Version > 0 {
		if u.Version < h.latest[u.Kind] {
			metrics.WebsocketDroppedTotal.WithLabelValues("stale").Inc()
			return
		}
		h.latest[u.Kind] = u.Version
	}
	select {
	case h.broadcast <- msg:
	default:
		metrics.WebsocketDroppedTotal.WithLabelValues("hub_busy").Inc()
	}
}

// ServeHTTP upgrades the request and streams updates to the new client,
// starting with the current equipment and alert snapshots.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("hub")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	if err := h.prime(c); err != nil {
		log.Error().Err(err).Msg("failed to encode initial state")
		conn.Close()
		return
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) prime(c *Client) error {
	unread := h.source.UnreadCount()
	initial := []engine.Update{
		{Kind: engine.UpdateEquipment, Equipment: h.source.Equipment(), UnreadCount: unread},
		{Kind: engine.UpdateAlerts, Alerts: h.source.Alerts(), UnreadCount: unread},
	}
	for _, u := range initial {
		msg, err := encode(u)
		if err != nil {
			return err
		}
		c.send <- msg
	}
	return nil
}

func encode(u engine.Update) ([]byte, error) {
	return json.Marshal(Message{Type: u.Kind, Payload: u})
}
