package entity

import "time"

// ChatMessage represents a single message on a customer thread, pushed to
// agent dashboards over the WebSocket hub.
type ChatMessage struct {
	LineID    string    `json:"line_id" bson:"line_id"`
	ChatID    string    `json:"chat_id" bson:"chat_id"`
	Direction string    `json:"direction" bson:"direction"` // "incoming" | "outgoing"
	Sender    string    `json:"sender" bson:"sender"`       // "customer" | "agent" | "bot"
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
