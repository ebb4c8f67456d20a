package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

// client serializa as escritas: o gorilla aceita um único writer por conexão.
type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *client) write(msgType int, b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(msgType, b)
}

// Hub gerencia conexões WebSocket e as assinaturas por sessão.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{} // sessionID -> conexões
}

// NewHub cria o hub com a política de origem informada.
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS atende uma conexão até ela fechar; cada cliente pode assinar várias sessões.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	c := &client{conn: conn}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.SessionID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.SessionID]; !ok {
				h.subs[msg.SessionID] = make(map[*client]struct{})
			}
			h.subs[msg.SessionID][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.remove(msg.SessionID, c)
		case "ping":
			_ = c.write(websocket.TextMessage, []byte(`{"type":"pong"}`))
		}
	}

	h.mu.Lock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) remove(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
}

// Subscribers conta as conexões inscritas numa sessão.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Broadcast envia a atualização aos inscritos da sessão.
func (h *Hub) Broadcast(update events.DrawUpdate) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[update.SessionID]))
	for c := range h.subs[update.SessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		return
	}
	for _, c := range targets {
		_ = c.write(websocket.TextMessage, b)
	}
}
