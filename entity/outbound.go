package entity

import "time"

// OutboundMessage is one pending delivery for a line that was not ready at
// send time. The queue lives in memory only; entries pending at crash time
// are lost, which is accepted.
type OutboundMessage struct {
	LineID      string    `json:"line_id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
