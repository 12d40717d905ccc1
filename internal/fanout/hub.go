// Package fanout pushes committed-bid events to realtime subscribers: a
// websocket hub keyed by auction id, fed from the committed-event queue.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/event"
	"github.com/gavelworks/gavel/internal/logging"
)

// Hub tracks which clients watch which auction and fans committed events out
// to them.
type Hub struct {
	// auction id -> set of clients watching it
	watchers sync.Map // map[string]*sync.Map

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage

	log logging.Logger
}

// Client is one websocket subscriber watching a single auction.
type Client struct {
	ID        string
	AuctionID string
	Conn      *websocket.Conn
	Send      chan []byte
}

type broadcastMessage struct {
	auctionID string
	payload   []byte
}

func NewHub(log logging.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 256),
		log:        log,
	}
}

// Run drives the hub's lifecycle loop until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(ctx, client)
		case client := <-h.unregister:
			h.removeClient(ctx, client)
		case msg := <-h.broadcast:
			h.broadcastToAuction(ctx, msg.auctionID, msg.payload)
		}
	}
}

// Pump forwards committed events from the bus into the hub until the context
// is cancelled or the bus closes.
func (h *Hub) Pump(ctx context.Context, b bus.Bus) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.Messages():
			if !ok {
				return nil
			}
			committed, err := event.Decode(msg.Data)
			if err != nil {
				h.log.Warn(ctx, "dropping undecodable committed event", "queue", msg.Queue, "error", err)
				msg.Ack()
				continue
			}
			h.Broadcast(committed.Auction.AuctionID, msg.Data)
			msg.Ack()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues a payload for every client watching the auction.
func (h *Hub) Broadcast(auctionID string, payload []byte) {
	h.broadcast <- broadcastMessage{auctionID: auctionID, payload: payload}
}

// WatcherCount reports how many clients watch an auction.
func (h *Hub) WatcherCount(auctionID string) int {
	set, ok := h.watchers.Load(auctionID)
	if !ok {
		return 0
	}
	count := 0
	set.(*sync.Map).Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (h *Hub) addClient(ctx context.Context, client *Client) {
	set, _ := h.watchers.LoadOrStore(client.AuctionID, &sync.Map{})
	set.(*sync.Map).Store(client, true)
	h.log.Debug(ctx, "client subscribed", "client", client.ID, "auction", client.AuctionID)
}

// removeClient is idempotent: a slow-client drop and the client's own
// ReadPump both unregister, and only the first may close the Send channel.
func (h *Hub) removeClient(ctx context.Context, client *Client) {
	set, ok := h.watchers.Load(client.AuctionID)
	if !ok {
		return
	}
	if _, present := set.(*sync.Map).LoadAndDelete(client); !present {
		return
	}
	close(client.Send)
	if client.Conn != nil {
		_ = client.Conn.Close()
	}
	h.log.Debug(ctx, "client unsubscribed", "client", client.ID, "auction", client.AuctionID)
}

func (h *Hub) broadcastToAuction(ctx context.Context, auctionID string, payload []byte) {
	set, ok := h.watchers.Load(auctionID)
	if !ok {
		return
	}
	set.(*sync.Map).Range(func(key, _ any) bool {
		client := key.(*Client)
		select {
		case client.Send <- payload:
		default:
			// A full send buffer means a stalled client; drop it so it
			// cannot block the others.
			h.log.Warn(ctx, "disconnecting slow client", "client", client.ID, "auction", auctionID)
			go h.Unregister(client)
		}
		return true
	})
}

// WritePump copies the client's send channel to the websocket connection,
// keeping the connection alive with pings. Runs once per connected client.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump consumes (and discards) client frames to detect disconnects, then
// unregisters the client.
func (c *Client) ReadPump(h *Hub) {
	defer h.Unregister(c)

	_ = c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
