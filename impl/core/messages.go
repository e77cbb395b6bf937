package core

import (
	"context"
	"log/slog"
	"time"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
)

// HandleInboundMessage is the entry point for customer messages coming off a
// transport session. It runs the escalation policy and pushes the resulting
// conversation state to the agent dashboards.
func (c *Core) HandleInboundMessage(lineID, from, text, contactName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conv, err := c.esc.HandleInbound(ctx, lineID, from, text, contactName)
	if err != nil {
		c.log.Error("handling inbound message",
			slog.String("line_id", lineID),
			slog.String("from", from),
			sl.Err(err),
		)
		return
	}

	if c.hub != nil {
		c.hub.BroadcastMessage(entity.ChatMessage{
			LineID:    lineID,
			ChatID:    from,
			Direction: "incoming",
			Sender:    "customer",
			Text:      text,
			CreatedAt: time.Now(),
		})
		c.hub.BroadcastConversation(conv)
	}
}

// Send delivers an outbound message on a line, falling back to the outbox
// when the session is not ready or the transport send fails. Implements the
// escalation sender contract. Only an unknown line is a hard error.
func (c *Core) Send(lineID, destination, text string) error {
	sent, err := c.sessions.Send(lineID, destination, text)
	if err != nil && !sent {
		return err
	}
	if err != nil {
		c.outbox.Enqueue(lineID, destination, text)
		c.log.Warn("send failed, message queued for next drain",
			slog.String("line_id", lineID),
			slog.String("destination", destination),
			sl.Err(err),
		)
		return nil
	}
	if !sent {
		c.outbox.Enqueue(lineID, destination, text)
		c.log.Debug("session not ready, message queued",
			slog.String("line_id", lineID),
			slog.String("destination", destination),
		)
		return nil
	}

	if c.hub != nil {
		c.hub.BroadcastMessage(entity.ChatMessage{
			LineID:    lineID,
			ChatID:    destination,
			Direction: "outgoing",
			Sender:    "agent",
			Text:      text,
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// HandleMarkRead clears the unread counter from a dashboard client.
func (c *Core) HandleMarkRead(_ string, lineID, chatID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.registry.MarkRead(ctx, lineID, chatID)
}

// HandlePresence updates an agent's availability from a dashboard client.
func (c *Core) HandlePresence(username, availability string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.qm.SetPresence(ctx, username, availability)
}
