package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"WaDesk/entity"
)

// ClientMessageHandler handles incoming WebSocket messages from agent
// dashboard clients.
type ClientMessageHandler interface {
	HandleMarkRead(username, lineID, chatID string) error
	HandlePresence(username, availability string) error
}

// Event represents a WebSocket event sent to agent clients.
type Event struct {
	Type string      `json:"type"` // "new_message", "conversation_update", "session_status", "qr"
	Data interface{} `json:"data"`
}

// Hub maintains the set of active WebSocket clients and broadcasts events.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	handler    ClientMessageHandler
	log        *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// SetHandler sets the handler for incoming client messages.
func (h *Hub) SetHandler(handler ClientMessageHandler) {
	h.handler = handler
}

// Run starts the hub's event loop. Should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastMessage sends a new_message event to all connected agents.
func (h *Hub) BroadcastMessage(msg entity.ChatMessage) {
	h.broadcast <- &Event{
		Type: "new_message",
		Data: msg,
	}
}

// BroadcastConversation sends a conversation_update event to all agents.
func (h *Hub) BroadcastConversation(c *entity.Conversation) {
	h.broadcast <- &Event{
		Type: "conversation_update",
		Data: c,
	}
}

// BroadcastSessionStatus sends a session_status event to all agents.
func (h *Hub) BroadcastSessionStatus(info entity.SessionInfo) {
	h.broadcast <- &Event{
		Type: "session_status",
		Data: info,
	}
}

// BroadcastQr pushes a fresh QR payload for a line to all agents.
func (h *Hub) BroadcastQr(lineID, payload string) {
	h.broadcast <- &Event{
		Type: "qr",
		Data: map[string]string{
			"line_id": lineID,
			"qr":      payload,
		},
	}
}

// clientEvent represents an incoming WebSocket message from an agent client.
type clientEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HandleClientMessage parses and dispatches an incoming message from a client.
func (h *Hub) HandleClientMessage(username string, raw []byte) {
	if h.handler == nil {
		return
	}

	var event clientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		if h.log != nil {
			h.log.Warn("failed to parse client ws message", slog.String("error", err.Error()))
		}
		return
	}

	switch event.Type {
	case "mark_read":
		var data struct {
			LineID string `json:"line_id"`
			ChatID string `json:"chat_id"`
		}
		if err := json.Unmarshal(event.Data, &data); err != nil {
			if h.log != nil {
				h.log.Warn("failed to parse mark_read data", slog.String("error", err.Error()))
			}
			return
		}
		if data.LineID == "" || data.ChatID == "" {
			return
		}
		if err := h.handler.HandleMarkRead(username, data.LineID, data.ChatID); err != nil {
			if h.log != nil {
				h.log.Error("failed to handle mark_read",
					slog.String("username", username),
					slog.String("line_id", data.LineID),
					slog.String("chat_id", data.ChatID),
					slog.String("error", err.Error()),
				)
			}
		}

	case "presence":
		var data struct {
			Availability string `json:"availability"`
		}
		if err := json.Unmarshal(event.Data, &data); err != nil {
			if h.log != nil {
				h.log.Warn("failed to parse presence data", slog.String("error", err.Error()))
			}
			return
		}
		if data.Availability == "" {
			return
		}
		if err := h.handler.HandlePresence(username, data.Availability); err != nil {
			if h.log != nil {
				h.log.Error("failed to handle presence",
					slog.String("username", username),
					slog.String("availability", data.Availability),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
