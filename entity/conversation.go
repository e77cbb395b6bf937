package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation states. A conversation starts under bot automation, moves to
// the waiting queue when the bot gives up, is assigned to exactly one agent,
// and ends in the terminal closed state.
const (
	StateAutomation = "automation"
	StateWaiting    = "waiting"
	StateAssigned   = "assigned"
	StateClosed     = "closed"
)

// History reasons recorded on state transitions.
const (
	ReasonCreated         = "created"
	ReasonAttemptLimit    = "attempt_limit_exceeded"
	ReasonUserRequested   = "user_requested"
	ReasonClaimed         = "claimed"
	ReasonTransferred     = "transferred"
	ReasonClosed          = "closed"
	ReasonDirectAssign    = "direct_assign"
	ReasonBatchClosed     = "batch_closed"
)

// StateEntry is one append-only history record. Entries are never edited or
// reordered after the fact.
type StateEntry struct {
	State  string    `json:"state" bson:"state"`
	At     time.Time `json:"at" bson:"at"`
	Reason string    `json:"reason,omitempty" bson:"reason,omitempty"`
	Agent  string    `json:"agent,omitempty" bson:"agent,omitempty"`
}

// ConversationMeta carries display data for the agent dashboard.
type ConversationMeta struct {
	ContactName string `json:"contact_name,omitempty" bson:"contact_name,omitempty"`
	LastMessage string `json:"last_message,omitempty" bson:"last_message,omitempty"`
	Unread      int    `json:"unread" bson:"unread"`
}

// Conversation is the unit of routing state for one customer thread on one
// line. At most one non-closed conversation exists per (line_id, chat_id).
type Conversation struct {
	ID            string           `json:"id" bson:"id"`
	LineID        string           `json:"line_id" bson:"line_id"`
	ChatID        string           `json:"chat_id" bson:"chat_id"`
	State         string           `json:"state" bson:"state"`
	AssignedAgent string           `json:"assigned_agent,omitempty" bson:"assigned_agent,omitempty"`
	BotAttempts   int              `json:"bot_attempts" bson:"bot_attempts"`
	CreatedAt     time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" bson:"updated_at"`
	History       []StateEntry     `json:"history" bson:"history"`
	Metadata      ConversationMeta `json:"metadata" bson:"metadata"`
}

// NewConversation creates a conversation in the automation state with its
// history seeded. The id embeds line and chat so closed threads from the same
// customer stay distinguishable.
func NewConversation(lineID, chatID string, meta ConversationMeta) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        fmt.Sprintf("%s:%s:%s", lineID, chatID, uuid.NewString()),
		LineID:    lineID,
		ChatID:    chatID,
		State:     StateAutomation,
		CreatedAt: now,
		UpdatedAt: now,
		History: []StateEntry{
			{State: StateAutomation, At: now, Reason: ReasonCreated},
		},
		Metadata: meta,
	}
}

// IsClosed reports whether the conversation reached its terminal state.
func (c *Conversation) IsClosed() bool {
	return c.State == StateClosed
}

// SameThread reports whether the conversation belongs to the given key.
func (c *Conversation) SameThread(lineID, chatID string) bool {
	return c.LineID == lineID && c.ChatID == chatID
}

// Append records a transition in the history and updates the current state.
func (c *Conversation) Append(state, reason, agent string) {
	now := time.Now()
	c.State = state
	c.UpdatedAt = now
	c.History = append(c.History, StateEntry{
		State:  state,
		At:     now,
		Reason: reason,
		Agent:  agent,
	})
}

// WaitDuration returns the time between the first waiting entry and the next
// assigned entry, or false when the history lacks either.
func (c *Conversation) WaitDuration() (time.Duration, bool) {
	var waitingAt time.Time
	for _, e := range c.History {
		if e.State == StateWaiting && waitingAt.IsZero() {
			waitingAt = e.At
			continue
		}
		if e.State == StateAssigned && !waitingAt.IsZero() {
			return e.At.Sub(waitingAt), true
		}
	}
	return 0, false
}

// ValidState reports whether s is a known conversation state.
func ValidState(s string) bool {
	switch s {
	case StateAutomation, StateWaiting, StateAssigned, StateClosed:
		return true
	}
	return false
}
