package websocket

import (
	"sync"

	"agentledger/internal/metrics"
)

// BalanceUpdate is pushed to an agent's open streams after each committed adjustment.
type BalanceUpdate struct {
	AgentID   string `json:"agent_id"`
	Balance   int64  `json:"balance"`
	Formatted string `json:"formatted"`
	Kind      string `json:"kind"`
	EntryID   string `json:"entry_id"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(agentID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[agentID] == nil {
		h.clients[agentID] = make(map[*Client]struct{})
	}
	if _, exists := h.clients[agentID][client]; !exists {
		h.clients[agentID][client] = struct{}{}
		metrics.ActiveWebSocketClients.Inc()
	}
}

func (h *Hub) Unregister(agentID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[agentID] == nil {
		return
	}
	if _, exists := h.clients[agentID][client]; !exists {
		return
	}
	delete(h.clients[agentID], client)
	metrics.ActiveWebSocketClients.Dec()
	if len(h.clients[agentID]) == 0 {
		delete(h.clients, agentID)
	}
}

func (h *Hub) ClientCount(agentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[agentID])
}

// BroadcastBalance never blocks; a slow client keeps only its newest updates.
func (h *Hub) BroadcastBalance(agentID string, update BalanceUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[agentID] {
		client.offer(update)
	}
}
