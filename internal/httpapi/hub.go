package httpapi

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// hub tracks connected websocket clients, keyed by connection ID, and fans
// out broadcast messages over each client's own buffered send channel.
type hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger *zap.Logger) *hub {
	return &hub{logger: logger.Named("ws-hub"), clients: make(map[string]*client)}
}

func (h *hub) add(id string, conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, 32)}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	go h.writePump(id, c)
	go h.readPump(id, c)
}

func (h *hub) writePump(id string, c *client) {
	defer h.remove(id)
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *hub) readPump(id string, c *client) {
	defer h.remove(id)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
		_ = c.conn.Close()
	}
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping message to slow websocket client", zap.String("clientId", id))
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
	}
	h.clients = make(map[string]*client)
}
