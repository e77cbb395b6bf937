package conversation

import (
	"context"

	"WaDesk/entity"
	"WaDesk/internal/service/queue"
)

// Core is the conversation surface the handlers consume.
type Core interface {
	ClaimConversation(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error)
	TransferConversation(ctx context.Context, lineID, chatID, fromAgent, toAgent string) (*entity.Conversation, error)
	CloseConversation(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error)
	AssignConversation(ctx context.Context, lineID, chatID, agent, origin string) (*entity.Conversation, error)
	GetConversation(ctx context.Context, lineID, chatID string) (*entity.Conversation, error)
	ListConversations(ctx context.Context, state, agentFilter string) ([]*entity.Conversation, error)
	QueueStats(ctx context.Context) (*queue.Stats, error)
	BatchClaim(ctx context.Context, ids []string, agent, origin string) []queue.BatchResult
	BatchClose(ctx context.Context, ids []string, agent string) []queue.BatchResult
}
