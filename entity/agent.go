package entity

import "time"

// Agent availability states.
const (
	AgentAvailable = "available"
	AgentBusy      = "busy"
	AgentAway      = "away"
)

// AgentPresence is an independently keyed availability record. It never
// participates in conversation mutations and needs no coordination with them.
type AgentPresence struct {
	AgentID      string    `json:"agent_id" bson:"agent_id" validate:"required"`
	Availability string    `json:"availability" bson:"availability" validate:"required,oneof=available busy away"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}
