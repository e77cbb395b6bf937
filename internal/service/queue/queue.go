package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/service/registry"
	"WaDesk/internal/store"
)

// Manager derives per-state views and aggregate statistics from the
// conversation registry and runs batch assignment and closure.
type Manager struct {
	registry *registry.Registry
	store    store.Store
	mu       sync.Mutex // serializes agent presence writes
	log      *slog.Logger
}

func New(reg *registry.Registry, st store.Store, log *slog.Logger) *Manager {
	return &Manager{
		registry: reg,
		store:    st,
		log:      log.With(sl.Module("queue")),
	}
}

// BatchResult is the per-item outcome of a batch operation. Failures carry
// a human-readable message and never abort the rest of the batch.
type BatchResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Stats is the aggregate queue snapshot. Field names are the legacy
// dashboard contract and are consumed as-is by the front end.
type Stats struct {
	Automation int   `json:"automacao"`
	Waiting    int   `json:"espera"`
	Assigned   int   `json:"atendimento"`
	Closed     int   `json:"encerradas"`
	Total      int   `json:"total"`
	AvgWaitMin int64 `json:"tempo_medio_espera"`
}

// ListByState returns conversations in the given state, optionally filtered
// to one agent for assigned views.
func (m *Manager) ListByState(ctx context.Context, state, agentFilter string) ([]*entity.Conversation, error) {
	all, err := m.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*entity.Conversation, 0, len(all))
	for _, c := range all {
		if c.State != state {
			continue
		}
		if agentFilter != "" && c.AssignedAgent != agentFilter {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Stats counts conversations per state and derives the mean waiting time in
// whole minutes over conversations that were both queued and picked up.
// The active total excludes closed conversations.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	all, err := m.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	var waitSum time.Duration
	var waitCount int64

	for _, c := range all {
		switch c.State {
		case entity.StateAutomation:
			stats.Automation++
		case entity.StateWaiting:
			stats.Waiting++
		case entity.StateAssigned:
			stats.Assigned++
		case entity.StateClosed:
			stats.Closed++
		}
		if d, ok := c.WaitDuration(); ok {
			waitSum += d
			waitCount++
		}
	}

	stats.Total = stats.Automation + stats.Waiting + stats.Assigned
	if waitCount > 0 {
		stats.AvgWaitMin = int64((waitSum / time.Duration(waitCount)).Minutes())
	}
	return stats, nil
}

// BatchClaim assigns each listed conversation to the agent, reporting a
// per-item result so one failure does not stop the rest. origin identifies
// the caller when claiming on another agent's behalf.
func (m *Manager) BatchClaim(ctx context.Context, ids []string, agent, origin string) []BatchResult {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		_, err := m.registry.ClaimID(ctx, id, agent, origin)
		results = append(results, toResult(id, err))
	}
	m.log.Info("batch claim finished",
		slog.Int("count", len(ids)),
		slog.String("agent", agent),
	)
	return results
}

// BatchClose closes each listed conversation, reporting per-item results.
func (m *Manager) BatchClose(ctx context.Context, ids []string, agent string) []BatchResult {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		_, err := m.registry.CloseID(ctx, id, agent)
		results = append(results, toResult(id, err))
	}
	m.log.Info("batch close finished",
		slog.Int("count", len(ids)),
		slog.String("agent", agent),
	)
	return results
}

func toResult(id string, err error) BatchResult {
	if err == nil {
		return BatchResult{ID: id, Success: true}
	}
	return BatchResult{ID: id, Success: false, Message: err.Error()}
}

// agentsDoc is the persisted shape of the agent presence collection.
type agentsDoc struct {
	Agents []entity.AgentPresence `json:"agents"`
}

// SetPresence upserts an agent's availability record.
func (m *Manager) SetPresence(ctx context.Context, agentID, availability string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := &agentsDoc{}
	err := m.store.ReadDocument(ctx, store.AgentsKey, doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := time.Now()
	for i := range doc.Agents {
		if doc.Agents[i].AgentID == agentID {
			doc.Agents[i].Availability = availability
			doc.Agents[i].UpdatedAt = now
			return m.store.WriteDocument(ctx, store.AgentsKey, doc)
		}
	}

	doc.Agents = append(doc.Agents, entity.AgentPresence{
		AgentID:      agentID,
		Availability: availability,
		UpdatedAt:    now,
	})
	return m.store.WriteDocument(ctx, store.AgentsKey, doc)
}

// ListPresence returns all known agent presence records.
func (m *Manager) ListPresence(ctx context.Context) ([]entity.AgentPresence, error) {
	doc := &agentsDoc{}
	err := m.store.ReadDocument(ctx, store.AgentsKey, doc)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Agents, nil
}
