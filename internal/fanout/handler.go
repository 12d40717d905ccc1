package fanout

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/gavelworks/gavel/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		// Origin policy is enforced upstream at the edge.
		return true
	},
}

// Handler exposes the websocket subscription endpoint.
type Handler struct {
	hub *Hub
	log logging.Logger
}

func NewHandler(hub *Hub, log logging.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

// Routes wires the subscription, health and stats endpoints.
func (h *Handler) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws/auctions/{id}", h.Subscribe)
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/stats/auctions/{id}", h.Stats).Methods("GET")
	return router
}

// Subscribe upgrades the connection and registers the client for one
// auction's committed-bid events.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	if auctionID == "" {
		http.Error(w, "auction id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
	}
	h.hub.Register(client)

	go client.WritePump()
	// ReadPump must not run on the request goroutine forever; detach it.
	go client.ReadPump(h.hub)

	h.log.Debug(context.Background(), "subscriber connected", "client", client.ID, "auction", auctionID)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"broadcast"}`)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"auctionId":%q,"watchers":%d}`, auctionID, h.hub.WatcherCount(auctionID))
}
