package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/store"
)

// Manager is the explicit registry of line controllers. It is owned by the
// composition root and injected wherever session access is needed; nothing
// reaches a global.
type Manager struct {
	factory Factory
	creds   CredentialStore
	st      store.Store
	opts    Options
	hooks   Hooks
	log     *slog.Logger

	mu    sync.RWMutex
	lines map[string]*Controller
}

func NewManager(factory Factory, creds CredentialStore, st store.Store, opts Options, log *slog.Logger) *Manager {
	return &Manager{
		factory: factory,
		creds:   creds,
		st:      st,
		opts:    opts,
		lines:   make(map[string]*Controller),
		log:     log.With(sl.Module("session.manager")),
	}
}

// SetHooks installs the event subscribers. Must be called before CreateLine.
func (m *Manager) SetHooks(hooks Hooks) {
	m.hooks = hooks
}

// CreateLine registers and starts a controller for a new line.
func (m *Manager) CreateLine(lineID string) (*Controller, error) {
	m.mu.Lock()
	if _, ok := m.lines[lineID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("line %s already exists", lineID)
	}
	c := NewController(lineID, m.factory, m.creds, m.st, m.opts, m.hooks, m.log)
	m.lines[lineID] = c
	m.mu.Unlock()

	if err := c.Start(); err != nil {
		return nil, err
	}

	m.log.Info("line created", slog.String("line_id", lineID))
	return c, nil
}

// Get returns the controller for a line.
func (m *Manager) Get(lineID string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.lines[lineID]
	return c, ok
}

// StatusAll returns a snapshot per line, sorted by line id.
func (m *Manager) StatusAll() []entity.SessionInfo {
	m.mu.RLock()
	out := make([]entity.SessionInfo, 0, len(m.lines))
	for _, c := range m.lines {
		out = append(out, c.Status())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LineID < out[j].LineID })
	return out
}

// Qr returns the pending QR payload for a line, when a scan is expected.
func (m *Manager) Qr(lineID string) (string, bool, error) {
	c, ok := m.Get(lineID)
	if !ok {
		return "", false, fmt.Errorf("line %s not found", lineID)
	}
	payload, pending := c.Qr()
	return payload, pending, nil
}

// Logout runs the operator logout path for a line. The line stays registered
// so a later Start can reuse it with fresh credentials.
func (m *Manager) Logout(lineID string) error {
	c, ok := m.Get(lineID)
	if !ok {
		return fmt.Errorf("line %s not found", lineID)
	}
	return c.Logout()
}

// Send delivers through a line's controller when ready, reporting readiness
// so callers can fall back to the outbox.
func (m *Manager) Send(lineID, destination, text string) (bool, error) {
	c, ok := m.Get(lineID)
	if !ok {
		return false, fmt.Errorf("line %s not found", lineID)
	}
	if !c.Ready() {
		return false, nil
	}
	return true, c.Send(destination, text)
}
