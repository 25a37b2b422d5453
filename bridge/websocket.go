package bridge

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/john/flashforge/printer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// message is the envelope of every server-to-client WebSocket message.
type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *WSClient) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// WSHub manages all WebSocket clients.
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*WSClient
}

func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[string]*WSClient),
	}
}

func (h *WSHub) register(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *WSHub) unregister(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastStatusUpdate sends the current state snapshot to all clients.
func (h *WSHub) BroadcastStatusUpdate(state *printer.State) {
	h.Broadcast("status", state.Snapshot())
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(kind string, data interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := message{Type: kind, Data: data}
	for _, client := range h.clients {
		if err := client.send(msg); err != nil {
			log.Printf("WebSocket send to %s failed: %v", client.id, err)
		}
	}
}

// CloseAll disconnects every client.
func (h *WSHub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.conn.Close()
	}
}

// HandleWebSocket upgrades the HTTP connection and keeps it registered until
// the client goes away. Clients only receive; incoming messages are discarded.
func (h *WSHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		conn: conn,
	}
	h.register(client)
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	if err := client.send(message{Type: "hello", Data: map[string]string{"connection_id": client.id}}); err != nil {
		return
	}

	log.Printf("WebSocket client %s connected from %s", client.id, r.RemoteAddr)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}
	}
	log.Printf("WebSocket client %s disconnected", client.id)
}
