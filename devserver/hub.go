package devserver

import (
	"encoding/json"
	"sync"

	"linkup/models"
)

// Hub tracks live connections per user and fans events out to them. A user
// may hold several connections (multiple tabs/devices).
type Hub struct {
	clients    map[string]*wsClient
	userConns  map[int64]map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[string]*wsClient),
		userConns:  make(map[int64]map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			if h.userConns[client.userID] == nil {
				h.userConns[client.userID] = make(map[*wsClient]bool)
			}
			h.userConns[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				if h.userConns[client.userID] != nil {
					delete(h.userConns[client.userID], client)
					if len(h.userConns[client.userID]) == 0 {
						delete(h.userConns, client.userID)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// SendToUsers delivers an event to every live connection of the given
// users. A connection with a full buffer is skipped rather than blocked on.
func (h *Hub) SendToUsers(userIDs []int64, evt *models.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}

	h.mu.RLock()
	for _, userID := range userIDs {
		for client := range h.userConns[userID] {
			select {
			case client.send <- data:
			default:
			}
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}
