package outbox

import (
	"log/slog"
	"sync"
	"time"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
)

// SendFn attempts one delivery. A nil error consumes the entry.
type SendFn func(destination, text string) error

// Outbox buffers outbound messages for lines whose session is not ready.
// Pending lists are scoped per line, so draining one line never touches
// another. The queue is memory-only: entries pending at crash time are lost.
type Outbox struct {
	mu      sync.Mutex
	pending map[string][]entity.OutboundMessage
	log     *slog.Logger
}

func New(log *slog.Logger) *Outbox {
	return &Outbox{
		pending: make(map[string][]entity.OutboundMessage),
		log:     log.With(sl.Module("outbox")),
	}
}

// Enqueue appends a pending delivery for a line. Order per destination is
// preserved; no cross-destination ordering is promised.
func (o *Outbox) Enqueue(lineID, destination, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending[lineID] = append(o.pending[lineID], entity.OutboundMessage{
		LineID:      lineID,
		Destination: destination,
		Text:        text,
		EnqueuedAt:  time.Now(),
	})

	o.log.Debug("message queued",
		slog.String("line_id", lineID),
		slog.String("destination", destination),
		slog.Int("pending", len(o.pending[lineID])),
	)
}

// Pending returns the number of queued entries for a line.
func (o *Outbox) Pending(lineID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending[lineID])
}

// Drain attempts every pending entry for one line in order. Successful
// sends are removed; failed ones stay queued for the next ready transition.
// There is no retry counter here; the next drain is the retry.
func (o *Outbox) Drain(lineID string, send SendFn) {
	o.mu.Lock()
	entries := o.pending[lineID]
	delete(o.pending, lineID)
	o.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	var failed []entity.OutboundMessage
	for _, e := range entries {
		if err := send(e.Destination, e.Text); err != nil {
			o.log.Warn("queued send failed",
				slog.String("line_id", lineID),
				slog.String("destination", e.Destination),
				sl.Err(err),
			)
			failed = append(failed, e)
		}
	}

	if len(failed) > 0 {
		o.mu.Lock()
		// Entries enqueued while draining come after the retained failures.
		o.pending[lineID] = append(failed, o.pending[lineID]...)
		o.mu.Unlock()
	}

	o.log.Info("outbox drained",
		slog.String("line_id", lineID),
		slog.Int("attempted", len(entries)),
		slog.Int("failed", len(failed)),
	)
}
