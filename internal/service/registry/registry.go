package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/store"
)

// conversationsDoc is the persisted shape of the conversations collection.
type conversationsDoc struct {
	Conversations []*entity.Conversation `json:"conversations"`
}

// Registry owns the conversation state machine. Every mutation runs the full
// load-mutate-store sequence under one mutex, so interleaved writers are
// serialized and the loser of a race observes the winner's state and fails
// its guard instead of overwriting it.
type Registry struct {
	store        store.Store
	mu           sync.Mutex
	attemptLimit int
	log          *slog.Logger
}

// New creates a Registry. attemptLimit is the bot attempt count that forces
// automatic escalation to the waiting queue.
func New(st store.Store, attemptLimit int, log *slog.Logger) *Registry {
	if attemptLimit <= 0 {
		attemptLimit = 3
	}
	return &Registry{
		store:        st,
		attemptLimit: attemptLimit,
		log:          log.With(sl.Module("registry")),
	}
}

func (r *Registry) load(ctx context.Context) (*conversationsDoc, error) {
	doc := &conversationsDoc{}
	err := r.store.ReadDocument(ctx, store.ConversationsKey, doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return doc, nil
}

func (r *Registry) save(ctx context.Context, doc *conversationsDoc) error {
	return r.store.WriteDocument(ctx, store.ConversationsKey, doc)
}

// findOpen returns the single non-closed conversation for a thread key.
func findOpen(doc *conversationsDoc, lineID, chatID string) *entity.Conversation {
	for _, c := range doc.Conversations {
		if c.SameThread(lineID, chatID) && !c.IsClosed() {
			return c
		}
	}
	return nil
}

func findByID(doc *conversationsDoc, id string) *entity.Conversation {
	for _, c := range doc.Conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// createOrFetch returns the open conversation for a thread, creating one in
// the automation state when the thread is unseen or previously closed.
// Callers hold r.mu and persist the document themselves.
func (r *Registry) createOrFetch(doc *conversationsDoc, lineID, chatID string, meta entity.ConversationMeta) (*entity.Conversation, bool) {
	if c := findOpen(doc, lineID, chatID); c != nil {
		return c, false
	}

	c := entity.NewConversation(lineID, chatID, meta)
	doc.Conversations = append(doc.Conversations, c)
	r.log.Info("conversation created",
		slog.String("id", c.ID),
		slog.String("line_id", lineID),
		slog.String("chat_id", chatID),
	)
	return c, true
}

// CreateOrFetch returns the open conversation for a thread, creating one in
// the automation state when the thread is unseen or previously closed.
func (r *Registry) CreateOrFetch(ctx context.Context, lineID, chatID string, meta entity.ConversationMeta) (*entity.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, false, err
	}

	c, created := r.createOrFetch(doc, lineID, chatID, meta)
	if !created {
		return c, false, nil
	}
	if err := r.save(ctx, doc); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// RecordInbound is CreateOrFetch plus dashboard metadata upkeep: last
// message preview, contact name and unread counter.
func (r *Registry) RecordInbound(ctx context.Context, lineID, chatID, text, contactName string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	c, _ := r.createOrFetch(doc, lineID, chatID, entity.ConversationMeta{})

	if contactName != "" {
		c.Metadata.ContactName = contactName
	}
	c.Metadata.LastMessage = text
	c.Metadata.Unread++
	c.UpdatedAt = time.Now()
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}
	return c, nil
}

// Escalate moves a conversation from automation to the waiting queue.
// Escalating one that already waits is a no-op success.
func (r *Registry) Escalate(ctx context.Context, lineID, chatID, reason string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return nil, ErrNotFound
	}

	switch c.State {
	case entity.StateWaiting:
		return c, nil
	case entity.StateAssigned:
		return nil, &ConflictError{Holder: c.AssignedAgent}
	case entity.StateClosed:
		return nil, ErrClosed
	}

	c.Append(entity.StateWaiting, reason, "")
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}

	r.log.Info("conversation escalated",
		slog.String("id", c.ID),
		slog.String("reason", reason),
	)
	return c, nil
}

// BumpBotAttempt increments the bot attempt counter. Reaching the configured
// limit forces the automation-to-waiting transition with reason
// attempt_limit_exceeded. Returns whether the bump escalated.
func (r *Registry) BumpBotAttempt(ctx context.Context, lineID, chatID string) (*entity.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, false, err
	}

	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return nil, false, ErrNotFound
	}
	if c.State != entity.StateAutomation {
		return c, false, nil
	}

	c.BotAttempts++
	escalated := c.BotAttempts >= r.attemptLimit
	if escalated {
		c.Append(entity.StateWaiting, entity.ReasonAttemptLimit, "")
	}
	if err := r.save(ctx, doc); err != nil {
		return nil, false, err
	}
	return c, escalated, nil
}

// Claim assigns a waiting conversation to an agent. Claiming one already
// held by the same agent is an idempotent success; a different holder yields
// a conflict naming them.
func (r *Registry) Claim(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return nil, ErrNotFound
	}
	changed, err := claim(c, agent, "")
	if err != nil {
		return nil, err
	}
	if !changed {
		return c, nil
	}
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}
	return c, nil
}

// ClaimID is Claim addressed by conversation id, for batch operations. When a
// supervisor batch-claims on behalf of another agent, origin names them in
// the history.
func (r *Registry) ClaimID(ctx context.Context, id, agent, origin string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	c := findByID(doc, id)
	if c == nil {
		return nil, ErrNotFound
	}
	changed, err := claim(c, agent, origin)
	if err != nil {
		return nil, err
	}
	if !changed {
		return c, nil
	}
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}
	return c, nil
}

// claim applies the claim guard to an already-located conversation and
// reports whether the document changed.
func claim(c *entity.Conversation, agent, origin string) (bool, error) {
	switch c.State {
	case entity.StateClosed:
		return false, ErrClosed
	case entity.StateAssigned:
		if c.AssignedAgent == agent {
			return false, nil
		}
		return false, &ConflictError{Holder: c.AssignedAgent}
	case entity.StateAutomation:
		return false, ErrStillAutomated
	}

	reason := entity.ReasonClaimed
	if origin != "" && origin != agent {
		reason = entity.ReasonClaimed + ":" + origin
	}
	c.AssignedAgent = agent
	c.Append(entity.StateAssigned, reason, agent)
	return true, nil
}

// Transfer moves an assigned conversation to another agent without passing
// through the waiting queue. Only the current holder may transfer.
func (r *Registry) Transfer(ctx context.Context, lineID, chatID, fromAgent, toAgent string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return nil, ErrNotFound
	}
	if c.State != entity.StateAssigned {
		return nil, ErrNotFound
	}
	if c.AssignedAgent != fromAgent {
		return nil, &ConflictError{Holder: c.AssignedAgent}
	}

	c.AssignedAgent = toAgent
	c.Append(entity.StateAssigned, entity.ReasonTransferred, toAgent)
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}

	r.log.Info("conversation transferred",
		slog.String("id", c.ID),
		slog.String("from", fromAgent),
		slog.String("to", toAgent),
	)
	return c, nil
}

// Close terminates a conversation. When assigned, only the holder may close;
// waiting and automation conversations may be closed by anyone.
func (r *Registry) Close(ctx context.Context, lineID, chatID, agent string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return nil, ErrNotFound
	}
	if err := closeConversation(c, agent, entity.ReasonClosed); err != nil {
		return nil, err
	}
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}
	return c, nil
}

// CloseID is Close addressed by conversation id, for batch operations.
func (r *Registry) CloseID(ctx context.Context, id, agent string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	c := findByID(doc, id)
	if c == nil {
		return nil, ErrNotFound
	}
	if err := closeConversation(c, agent, entity.ReasonBatchClosed); err != nil {
		return nil, err
	}
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}
	return c, nil
}

func closeConversation(c *entity.Conversation, agent, reason string) error {
	switch c.State {
	case entity.StateClosed:
		return ErrClosed
	case entity.StateAssigned:
		if c.AssignedAgent != agent {
			return &ConflictError{Holder: c.AssignedAgent}
		}
	}
	c.AssignedAgent = ""
	c.Append(entity.StateClosed, reason, agent)
	return nil
}

// AssignDirect is the operator override: it assigns from any non-closed
// state without the waiting-queue guard.
func (r *Registry) AssignDirect(ctx context.Context, lineID, chatID, agent, origin string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return nil, ErrNotFound
	}
	if c.IsClosed() {
		return nil, ErrClosed
	}
	if c.State == entity.StateAssigned && c.AssignedAgent == agent {
		return c, nil
	}

	reason := entity.ReasonDirectAssign
	if origin != "" && origin != agent {
		reason = entity.ReasonDirectAssign + ":" + origin
	}

	c.AssignedAgent = agent
	c.Append(entity.StateAssigned, reason, agent)
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkRead clears the unread counter for a thread.
func (r *Registry) MarkRead(ctx context.Context, lineID, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return err
	}
	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return ErrNotFound
	}
	c.Metadata.Unread = 0
	return r.save(ctx, doc)
}

// Get returns the open conversation for a thread key.
func (r *Registry) Get(ctx context.Context, lineID, chatID string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	c := findOpen(doc, lineID, chatID)
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns every conversation, closed ones included.
func (r *Registry) List(ctx context.Context) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Conversations, nil
}
