package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/store"
)

// Options bound the controller's timers and retry budgets.
type Options struct {
	InitTimeout    time.Duration
	Heartbeat      time.Duration
	ReconnectDelay time.Duration
	PurgeRetries   uint64
}

// DefaultOptions mirrors the production configuration defaults.
func DefaultOptions() Options {
	return Options{
		InitTimeout:    90 * time.Second,
		Heartbeat:      30 * time.Second,
		ReconnectDelay: 15 * time.Second,
		PurgeRetries:   5,
	}
}

// Hooks are the controller's outbound notifications. All fields are
// optional; errors never propagate back into the controller loop.
type Hooks struct {
	// OnReady fires when the session becomes ready (drain trigger).
	OnReady func(lineID string)
	// OnStatus fires after every status change with a snapshot.
	OnStatus func(info entity.SessionInfo)
	// OnMessage fires for every inbound customer message.
	OnMessage func(lineID, from, text, contactName string)
	// OnQr fires when a fresh QR code should be shown to the operator.
	OnQr func(lineID, payload string)
}

// Controller wraps one transport session for one line. It owns the status
// machine, the reconnect policy and the heartbeat, and it is the only writer
// of the line's persisted session snapshot.
type Controller struct {
	lineID  string
	factory Factory
	creds   CredentialStore
	st      store.Store
	opts    Options
	hooks   Hooks
	log     *slog.Logger

	mu              sync.Mutex
	info            entity.SessionInfo
	transport       Transport
	logoutRequested bool
	stopHeartbeat   chan struct{}

	// statusCh feeds snapshots to a single consumer goroutine so persisted
	// documents and OnStatus notifications keep transition order.
	statusCh chan entity.SessionInfo
}

// NewController builds an idle controller; Start connects it.
func NewController(lineID string, factory Factory, creds CredentialStore, st store.Store, opts Options, hooks Hooks, log *slog.Logger) *Controller {
	c := &Controller{
		lineID:  lineID,
		factory: factory,
		creds:   creds,
		st:      st,
		opts:    opts,
		hooks:   hooks,
		log: log.With(
			sl.Module("session.controller"),
			slog.String("line_id", lineID),
		),
		info: entity.SessionInfo{
			LineID:    lineID,
			Status:    entity.SessionIdle,
			CreatedAt: time.Now(),
		},
		statusCh: make(chan entity.SessionInfo, 32),
	}
	go c.statusLoop()
	return c
}

// statusLoop drains status snapshots in transition order, persisting each one
// and notifying the OnStatus subscriber. Running it on a single goroutine is
// what guarantees a later transition never lands before an earlier one.
func (c *Controller) statusLoop() {
	for snapshot := range c.statusCh {
		if c.st != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.st.WriteDocument(ctx, store.SessionKey(c.lineID), snapshot); err != nil {
				c.log.Warn("persisting session snapshot", sl.Err(err))
			}
			cancel()
		}
		if c.hooks.OnStatus != nil {
			c.hooks.OnStatus(snapshot)
		}
	}
}

// Start moves the controller to initializing and builds the transport.
// Exceeding the init timeout is a warning, not an abort: the transport may
// still complete asynchronously, e.g. a QR scanned after the timer fired.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.info.Status != entity.SessionIdle &&
		c.info.Status != entity.SessionDisconnected &&
		c.info.Status != entity.SessionError {
		c.mu.Unlock()
		return fmt.Errorf("session %s already started (status %s)", c.lineID, c.info.Status)
	}
	c.logoutRequested = false
	c.setStatusLocked(entity.SessionInitializing)
	c.mu.Unlock()

	transport, err := c.factory.New(c.lineID, c.handleEvent)
	if err != nil {
		c.mu.Lock()
		c.setStatusLocked(entity.SessionError)
		c.mu.Unlock()
		return fmt.Errorf("creating transport for %s: %w", c.lineID, err)
	}

	c.mu.Lock()
	c.transport = transport
	c.mu.Unlock()

	time.AfterFunc(c.opts.InitTimeout, func() {
		c.mu.Lock()
		status := c.info.Status
		c.mu.Unlock()
		if status == entity.SessionInitializing || status == entity.SessionQrReady {
			c.log.Warn("session init timeout exceeded, still waiting",
				slog.String("status", status),
				slog.Duration("timeout", c.opts.InitTimeout),
			)
		}
	})

	return nil
}

// Status returns the current session snapshot.
func (c *Controller) Status() entity.SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Qr returns the pending QR payload, if a scan is expected.
func (c *Controller) Qr() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.Status != entity.SessionQrReady {
		return "", false
	}
	return c.info.QrPayload, true
}

// Send delivers a message through the live transport. Callers are expected
// to check readiness first and fall back to the outbox otherwise.
func (c *Controller) Send(destination, text string) error {
	c.mu.Lock()
	transport := c.transport
	ready := c.info.Status == entity.SessionReady
	c.mu.Unlock()

	if !ready || transport == nil {
		return fmt.Errorf("session %s not ready", c.lineID)
	}
	if err := transport.SendMessage(destination, text); err != nil {
		return err
	}

	c.mu.Lock()
	c.info.MessageCount++
	c.mu.Unlock()
	return nil
}

// Ready reports whether the session can deliver right now.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.Status == entity.SessionReady
}

// Logout is the only path allowed to purge credential artifacts. The purge
// itself happens once the transport confirms the disconnect.
func (c *Controller) Logout() error {
	c.mu.Lock()
	c.logoutRequested = true
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		// Nothing live; purge straight away.
		c.handleEvent(TransportEvent{Kind: EventDisconnected, Reason: entity.DisconnectLogout})
		return nil
	}

	c.log.Info("logout requested")
	return transport.Logout()
}

// handleEvent is the single entry point for normalized transport events.
func (c *Controller) handleEvent(ev TransportEvent) {
	switch ev.Kind {
	case EventQrIssued:
		c.onQr(ev.QrPayload)
	case EventAuthenticated:
		c.onAuthenticated()
	case EventReady:
		c.onReady(ev.PhoneNumber)
	case EventMessageReceived:
		c.onMessage(ev)
	case EventDisconnected:
		c.onDisconnected(ev.Reason)
	case EventAuthFailure:
		c.onAuthFailure(ev.Reason)
	}
}

// onQr stores a fresh QR payload. A QR arriving while the session is already
// authenticated or ready is a stale re-auth prompt from the transport and is
// dropped: acting on it would tear down a working session.
func (c *Controller) onQr(payload string) {
	c.mu.Lock()
	if c.info.Status == entity.SessionAuthenticated || c.info.Status == entity.SessionReady {
		c.mu.Unlock()
		c.log.Warn("ignoring spurious qr while connected")
		return
	}
	c.info.QrPayload = payload
	c.info.LastQrAt = time.Now()
	c.setStatusLocked(entity.SessionQrReady)
	c.mu.Unlock()

	if c.hooks.OnQr != nil {
		c.hooks.OnQr(c.lineID, payload)
	}
}

func (c *Controller) onAuthenticated() {
	c.mu.Lock()
	c.info.QrPayload = ""
	c.setStatusLocked(entity.SessionAuthenticated)
	c.mu.Unlock()
}

func (c *Controller) onReady(phone string) {
	c.mu.Lock()
	c.info.QrPayload = ""
	if phone != "" {
		c.info.PhoneNumber = phone
	}
	c.info.ConnectedAt = time.Now()
	c.setStatusLocked(entity.SessionReady)
	c.startHeartbeatLocked()
	c.mu.Unlock()

	if c.hooks.OnReady != nil {
		c.hooks.OnReady(c.lineID)
	}
}

func (c *Controller) onMessage(ev TransportEvent) {
	c.mu.Lock()
	c.info.MessageCount++
	c.mu.Unlock()

	if c.hooks.OnMessage != nil {
		c.hooks.OnMessage(c.lineID, ev.From, ev.Text, ev.ContactName)
	}
}

// onDisconnected applies the resilience policy. A disconnect is not itself
// destructive: unless it confirms an operator logout, credentials stay in
// place and a bounded-delay reconnect is scheduled.
func (c *Controller) onDisconnected(reason string) {
	c.mu.Lock()
	c.info.LastDisconnect = reason
	c.stopHeartbeatLocked()
	userLogout := c.logoutRequested || entity.UserInitiated(reason)

	if userLogout {
		c.transport = nil
		c.info.PhoneNumber = ""
		c.info.QrPayload = ""
		c.setStatusLocked(entity.SessionIdle)
		c.mu.Unlock()

		c.log.Info("session logged out", slog.String("reason", reason))
		c.purgeCredentials()
		return
	}

	c.setStatusLocked(entity.SessionDisconnected)
	c.mu.Unlock()

	c.log.Warn("session disconnected, scheduling reconnect",
		slog.String("reason", reason),
		slog.Duration("delay", c.opts.ReconnectDelay),
	)
	time.AfterFunc(c.opts.ReconnectDelay, c.reconnect)
}

func (c *Controller) onAuthFailure(reason string) {
	c.mu.Lock()
	c.stopHeartbeatLocked()
	c.info.LastDisconnect = reason
	c.setStatusLocked(entity.SessionError)
	c.mu.Unlock()

	c.log.Error("transport rejected authentication, operator intervention required",
		slog.String("reason", reason),
	)
}

func (c *Controller) reconnect() {
	c.mu.Lock()
	if c.info.Status != entity.SessionDisconnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.Info("reconnecting session")
	if err := c.Start(); err != nil {
		c.log.Error("reconnect failed", sl.Err(err))
	}
}

// purgeCredentials removes persisted credential artifacts with bounded
// exponential backoff, because the underlying storage may be transiently
// locked. On exhaustion it gives up with a warning and leaves the artifacts
// for a future logout to retry.
func (c *Controller) purgeCredentials() {
	if c.creds == nil {
		return
	}

	attempt := func() error {
		err := c.creds.Purge(c.lineID)
		if err != nil && !errors.Is(err, store.ErrBusy) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(newPurgePolicy(), c.opts.PurgeRetries)
	if err := backoff.Retry(attempt, policy); err != nil {
		c.log.Warn("credential purge gave up, artifacts left in place", sl.Err(err))
		return
	}
	c.log.Info("credentials purged")
}

func newPurgePolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// startHeartbeatLocked launches the liveness probe loop. A failed or slow
// probe is logged only; state transitions come from explicit disconnect
// events, which keeps one slow probe from flapping the session.
func (c *Controller) startHeartbeatLocked() {
	if c.stopHeartbeat != nil {
		return
	}
	stop := make(chan struct{})
	c.stopHeartbeat = stop

	go func() {
		ticker := time.NewTicker(c.opts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.probe()
			}
		}
	}()
}

func (c *Controller) stopHeartbeatLocked() {
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
		c.stopHeartbeat = nil
	}
}

func (c *Controller) probe() {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		done <- transport.GetState()
	}()

	select {
	case state := <-done:
		if state != "CONNECTED" {
			c.log.Warn("heartbeat probe reported unexpected state",
				slog.String("state", state),
			)
		}
	case <-ctx.Done():
		c.log.Warn("heartbeat probe timed out")
	}
}

// setStatusLocked updates the status and hands the snapshot to statusLoop.
// Callers hold c.mu; the consumer never takes it, so the send cannot
// deadlock.
func (c *Controller) setStatusLocked(status string) {
	c.info.Status = status
	c.statusCh <- c.info
	c.log.Debug("session status", slog.String("status", status))
}
