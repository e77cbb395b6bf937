package core

import (
	"context"

	"WaDesk/entity"
	"WaDesk/internal/service/queue"
)

// Conversation mutations pass through the registry and push the updated
// record to connected agent dashboards.

func (c *Core) ClaimConversation(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error) {
	conv, err := c.registry.Claim(ctx, lineID, chatID, agent)
	if err != nil {
		return nil, err
	}
	c.broadcast(conv)
	return conv, nil
}

func (c *Core) TransferConversation(ctx context.Context, lineID, chatID, fromAgent, toAgent string) (*entity.Conversation, error) {
	conv, err := c.registry.Transfer(ctx, lineID, chatID, fromAgent, toAgent)
	if err != nil {
		return nil, err
	}
	c.broadcast(conv)
	return conv, nil
}

func (c *Core) CloseConversation(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error) {
	conv, err := c.registry.Close(ctx, lineID, chatID, agent)
	if err != nil {
		return nil, err
	}
	c.broadcast(conv)
	return conv, nil
}

func (c *Core) AssignConversation(ctx context.Context, lineID, chatID, agent, origin string) (*entity.Conversation, error) {
	conv, err := c.registry.AssignDirect(ctx, lineID, chatID, agent, origin)
	if err != nil {
		return nil, err
	}
	c.broadcast(conv)
	return conv, nil
}

func (c *Core) GetConversation(ctx context.Context, lineID, chatID string) (*entity.Conversation, error) {
	return c.registry.Get(ctx, lineID, chatID)
}

func (c *Core) ListConversations(ctx context.Context, state, agentFilter string) ([]*entity.Conversation, error) {
	if state == "" {
		return c.registry.List(ctx)
	}
	return c.qm.ListByState(ctx, state, agentFilter)
}

func (c *Core) QueueStats(ctx context.Context) (*queue.Stats, error) {
	return c.qm.Stats(ctx)
}

func (c *Core) BatchClaim(ctx context.Context, ids []string, agent, origin string) []queue.BatchResult {
	results := c.qm.BatchClaim(ctx, ids, agent, origin)
	return results
}

func (c *Core) BatchClose(ctx context.Context, ids []string, agent string) []queue.BatchResult {
	return c.qm.BatchClose(ctx, ids, agent)
}

func (c *Core) SetPresence(ctx context.Context, agentID, availability string) error {
	return c.qm.SetPresence(ctx, agentID, availability)
}

func (c *Core) ListPresence(ctx context.Context) ([]entity.AgentPresence, error) {
	return c.qm.ListPresence(ctx)
}

func (c *Core) broadcast(conv *entity.Conversation) {
	if c.hub != nil && conv != nil {
		c.hub.BroadcastConversation(conv)
	}
}
