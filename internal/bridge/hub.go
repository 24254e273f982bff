// Package bridge runs the local console endpoint: a small HTTP API over
// the credential store and task audit trail, plus a WebSocket feed that
// pushes credential and task events to any attached console UI. The
// feed is broadcast-only; clients cannot mutate state through it.
package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"agentdeck/pkg/logger"
)

// Hub maintains the set of attached console clients and fans events out
// to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Run must be called to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run services the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug().Str("client_id", client.id).Msg("Console client attached")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Debug().Str("client_id", client.id).Msg("Console client detached")

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastTyped sends a typed event to every attached client.
func (h *Hub) BroadcastTyped(eventType string, payload any) {
	msg := struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: eventType, Data: payload}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Str("type", eventType).Msg("Failed to marshal console event")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logger.Warn().Str("type", eventType).Msg("Console event dropped, broadcast queue full")
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
