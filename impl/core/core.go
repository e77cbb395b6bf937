package core

import (
	"context"
	"log/slog"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/service/queue"
	"WaDesk/internal/service/session"
	"WaDesk/internal/ws"
)

// Registry is the conversation state machine surface the core consumes.
type Registry interface {
	Claim(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error)
	Transfer(ctx context.Context, lineID, chatID, fromAgent, toAgent string) (*entity.Conversation, error)
	Close(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error)
	AssignDirect(ctx context.Context, lineID, chatID, agent, origin string) (*entity.Conversation, error)
	Get(ctx context.Context, lineID, chatID string) (*entity.Conversation, error)
	List(ctx context.Context) ([]*entity.Conversation, error)
	MarkRead(ctx context.Context, lineID, chatID string) error
}

// QueueService is the queue manager surface.
type QueueService interface {
	ListByState(ctx context.Context, state, agentFilter string) ([]*entity.Conversation, error)
	Stats(ctx context.Context) (*queue.Stats, error)
	BatchClaim(ctx context.Context, ids []string, agent, origin string) []queue.BatchResult
	BatchClose(ctx context.Context, ids []string, agent string) []queue.BatchResult
	SetPresence(ctx context.Context, agentID, availability string) error
	ListPresence(ctx context.Context) ([]entity.AgentPresence, error)
}

// SessionService is the line/session surface.
type SessionService interface {
	CreateLine(lineID string) (*session.Controller, error)
	StatusAll() []entity.SessionInfo
	Qr(lineID string) (string, bool, error)
	Logout(lineID string) error
	Send(lineID, destination, text string) (bool, error)
}

// Escalation routes inbound customer messages through the bot policy.
type Escalation interface {
	HandleInbound(ctx context.Context, lineID, chatID, text, contactName string) (*entity.Conversation, error)
}

// Outbox buffers outbound messages for lines that are not ready.
type Outbox interface {
	Enqueue(lineID, destination, text string)
}

// KeyStore persists API keys for agents.
type KeyStore interface {
	CheckApiKey(ctx context.Context, key string) (string, error)
	GenerateApiKey(ctx context.Context, username string) (string, error)
}

// Core wires the services together and backs every HTTP and WebSocket
// handler interface. Dependencies are injected through setters from the
// composition root so optional subsystems can stay unset.
type Core struct {
	registry Registry
	qm       QueueService
	sessions SessionService
	esc      Escalation
	outbox   Outbox
	keys     KeyStore
	hub      *ws.Hub
	authKey  string
	log      *slog.Logger
}

func New(log *slog.Logger) *Core {
	return &Core{
		log: log.With(sl.Module("core")),
	}
}

func (c *Core) SetRegistry(r Registry) { c.registry = r }

func (c *Core) SetQueueService(q QueueService) { c.qm = q }

func (c *Core) SetSessionService(s SessionService) { c.sessions = s }

func (c *Core) SetEscalation(e Escalation) { c.esc = e }

func (c *Core) SetOutbox(o Outbox) { c.outbox = o }

func (c *Core) SetKeyStore(k KeyStore) { c.keys = k }

func (c *Core) SetHub(h *ws.Hub) { c.hub = h }

func (c *Core) SetAuthKey(key string) { c.authKey = key }
