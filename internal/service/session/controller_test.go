package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WaDesk/entity"
	"WaDesk/internal/store"
)

type fakeTransport struct {
	mu        sync.Mutex
	events    func(TransportEvent)
	sent      [][2]string
	loggedOut bool
}

func (f *fakeTransport) SendMessage(destination, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, [2]string{destination, text})
	return nil
}

func (f *fakeTransport) GetState() string { return "CONNECTED" }

func (f *fakeTransport) Logout() error {
	f.mu.Lock()
	f.loggedOut = true
	events := f.events
	f.mu.Unlock()
	// A real client confirms the logout with a disconnect event.
	events(TransportEvent{Kind: EventDisconnected, Reason: entity.DisconnectLogout})
	return nil
}

func (f *fakeTransport) Destroy() error { return nil }

type fakeFactory struct {
	mu       sync.Mutex
	calls    int
	failWith error
	last     *fakeTransport
}

func (f *fakeFactory) New(_ string, events func(TransportEvent)) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.last = &fakeTransport{events: events}
	return f.last, nil
}

func (f *fakeFactory) newCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeCreds reports busy for the first busyCalls purge attempts.
type fakeCreds struct {
	mu        sync.Mutex
	busyCalls int
	attempts  int
	purged    bool
}

func (f *fakeCreds) Purge(_ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.busyCalls {
		return store.ErrBusy
	}
	f.purged = true
	return nil
}

func (f *fakeCreds) Exists(_ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.purged
}

func (f *fakeCreds) stats() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, f.purged
}

func testOptions() Options {
	return Options{
		InitTimeout:    50 * time.Millisecond,
		Heartbeat:      time.Hour,
		ReconnectDelay: 20 * time.Millisecond,
		PurgeRetries:   5,
	}
}

func testController(t *testing.T, factory Factory, creds CredentialStore) *Controller {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewController("line1", factory, creds, store.NewMemStore(), testOptions(), Hooks{}, log)
}

func connect(t *testing.T, c *Controller, factory *fakeFactory) *fakeTransport {
	t.Helper()
	require.NoError(t, c.Start())
	tr := factory.last
	require.NotNil(t, tr)
	tr.events(TransportEvent{Kind: EventQrIssued, QrPayload: "qr-1"})
	tr.events(TransportEvent{Kind: EventAuthenticated})
	tr.events(TransportEvent{Kind: EventReady, PhoneNumber: "5511999"})
	return tr
}

func TestStartLifecycle(t *testing.T) {
	factory := &fakeFactory{}
	c := testController(t, factory, &fakeCreds{})

	require.NoError(t, c.Start())
	assert.Equal(t, entity.SessionInitializing, c.Status().Status)

	// Double start is rejected while a connect is in flight.
	assert.Error(t, c.Start())

	tr := factory.last
	tr.events(TransportEvent{Kind: EventQrIssued, QrPayload: "qr-1"})
	assert.Equal(t, entity.SessionQrReady, c.Status().Status)
	payload, pending := c.Qr()
	assert.True(t, pending)
	assert.Equal(t, "qr-1", payload)

	tr.events(TransportEvent{Kind: EventAuthenticated})
	assert.Equal(t, entity.SessionAuthenticated, c.Status().Status)

	tr.events(TransportEvent{Kind: EventReady, PhoneNumber: "5511999"})
	info := c.Status()
	assert.Equal(t, entity.SessionReady, info.Status)
	assert.Equal(t, "5511999", info.PhoneNumber)
	assert.True(t, c.Ready())
}

func TestStartFactoryFailure(t *testing.T) {
	factory := &fakeFactory{failWith: errors.New("boom")}
	c := testController(t, factory, &fakeCreds{})

	require.Error(t, c.Start())
	assert.Equal(t, entity.SessionError, c.Status().Status)
}

func TestSpuriousQrIgnoredWhileConnected(t *testing.T) {
	factory := &fakeFactory{}
	c := testController(t, factory, &fakeCreds{})
	tr := connect(t, c, factory)

	tr.events(TransportEvent{Kind: EventQrIssued, QrPayload: "stale-qr"})

	info := c.Status()
	assert.Equal(t, entity.SessionReady, info.Status)
	assert.Equal(t, "5511999", info.PhoneNumber)
	_, pending := c.Qr()
	assert.False(t, pending)
}

func TestAmbiguousDisconnectKeepsCredentials(t *testing.T) {
	factory := &fakeFactory{}
	creds := &fakeCreds{}
	c := testController(t, factory, creds)
	tr := connect(t, c, factory)

	tr.events(TransportEvent{Kind: EventDisconnected, Reason: "UNKNOWN"})

	info := c.Status()
	assert.Equal(t, entity.SessionDisconnected, info.Status)
	assert.Equal(t, "UNKNOWN", info.LastDisconnect)

	attempts, _ := creds.stats()
	assert.Zero(t, attempts, "ambiguous disconnect must never purge")

	// The reconnect policy kicks in after the configured delay.
	require.Eventually(t, func() bool {
		return factory.newCalls() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestLogoutPurgesThroughTransientBusy(t *testing.T) {
	factory := &fakeFactory{}
	creds := &fakeCreds{busyCalls: 2}
	c := testController(t, factory, creds)
	tr := connect(t, c, factory)

	require.NoError(t, c.Logout())
	assert.True(t, tr.loggedOut)

	require.Eventually(t, func() bool {
		_, purged := creds.stats()
		return purged
	}, 5*time.Second, 20*time.Millisecond)

	attempts, _ := creds.stats()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, entity.SessionIdle, c.Status().Status)
	assert.Empty(t, c.Status().PhoneNumber)

	// No reconnect after a confirmed logout.
	time.Sleep(3 * testOptions().ReconnectDelay)
	assert.Equal(t, 1, factory.newCalls())
}

func TestPurgeGivesUpOnPersistentBusy(t *testing.T) {
	factory := &fakeFactory{}
	creds := &fakeCreds{busyCalls: 100}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := testOptions()
	opts.PurgeRetries = 2
	c := NewController("line1", factory, creds, store.NewMemStore(), opts, Hooks{}, log)
	connect(t, c, factory)

	require.NoError(t, c.Logout())

	require.Eventually(t, func() bool {
		attempts, _ := creds.stats()
		return attempts == 3
	}, 5*time.Second, 20*time.Millisecond)

	_, purged := creds.stats()
	assert.False(t, purged, "artifacts stay for a future logout to retry")
	assert.Equal(t, entity.SessionIdle, c.Status().Status)
}

func TestUserInitiatedReasonPurgesWithoutLocalLogout(t *testing.T) {
	factory := &fakeFactory{}
	creds := &fakeCreds{}
	c := testController(t, factory, creds)
	tr := connect(t, c, factory)

	// Logout confirmed from the phone, not through our API.
	tr.events(TransportEvent{Kind: EventDisconnected, Reason: entity.DisconnectUserLogout})

	require.Eventually(t, func() bool {
		_, purged := creds.stats()
		return purged
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, entity.SessionIdle, c.Status().Status)
}

func TestInitTimeoutIsWarningOnly(t *testing.T) {
	factory := &fakeFactory{}
	c := testController(t, factory, &fakeCreds{})

	require.NoError(t, c.Start())
	time.Sleep(testOptions().InitTimeout + 30*time.Millisecond)

	// Still waiting, not failed: a QR scanned late must still connect.
	assert.Equal(t, entity.SessionInitializing, c.Status().Status)

	factory.last.events(TransportEvent{Kind: EventReady})
	assert.Equal(t, entity.SessionReady, c.Status().Status)
}

func TestSendRequiresReady(t *testing.T) {
	factory := &fakeFactory{}
	c := testController(t, factory, &fakeCreds{})

	require.Error(t, c.Send("5511999", "oi"))

	tr := connect(t, c, factory)
	require.NoError(t, c.Send("5511999", "oi"))
	assert.Equal(t, [2]string{"5511999", "oi"}, tr.sent[0])
	assert.Equal(t, 1, c.Status().MessageCount)
}

func TestAuthFailureIsTerminal(t *testing.T) {
	factory := &fakeFactory{}
	c := testController(t, factory, &fakeCreds{})
	tr := connect(t, c, factory)

	tr.events(TransportEvent{Kind: EventAuthFailure, Reason: "invalid credentials"})
	assert.Equal(t, entity.SessionError, c.Status().Status)

	// No reconnect attempt for auth failures.
	time.Sleep(3 * testOptions().ReconnectDelay)
	assert.Equal(t, 1, factory.newCalls())
}

func TestStatusPersistsInTransitionOrder(t *testing.T) {
	factory := &fakeFactory{}
	st := store.NewMemStore()
	var mu sync.Mutex
	var seen []string
	hooks := Hooks{OnStatus: func(info entity.SessionInfo) {
		mu.Lock()
		seen = append(seen, info.Status)
		mu.Unlock()
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController("line1", factory, &fakeCreds{}, st, testOptions(), hooks, log)

	require.NoError(t, c.Start())
	tr := factory.last
	// Cloud transports confirm authentication and readiness back to back.
	tr.events(TransportEvent{Kind: EventAuthenticated})
	tr.events(TransportEvent{Kind: EventReady, PhoneNumber: "5511999"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{
		entity.SessionInitializing,
		entity.SessionAuthenticated,
		entity.SessionReady,
	}, seen, "notifications keep transition order")
	mu.Unlock()

	// Each snapshot is persisted before its notification fires, so by now the
	// durable document must hold the final status.
	var persisted entity.SessionInfo
	require.NoError(t, st.ReadDocument(context.Background(), store.SessionKey("line1"), &persisted))
	assert.Equal(t, entity.SessionReady, persisted.Status)
	assert.Equal(t, "5511999", persisted.PhoneNumber)
}

func TestManagerCreateAndSend(t *testing.T) {
	factory := &fakeFactory{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(factory, &fakeCreds{}, store.NewMemStore(), testOptions(), log)

	_, err := m.CreateLine("line1")
	require.NoError(t, err)
	_, err = m.CreateLine("line1")
	require.Error(t, err, "duplicate line ids are rejected")

	sent, err := m.Send("line1", "5511999", "oi")
	require.NoError(t, err)
	assert.False(t, sent, "not ready yet, caller should queue")

	factory.last.events(TransportEvent{Kind: EventReady})
	sent, err = m.Send("line1", "5511999", "oi")
	require.NoError(t, err)
	assert.True(t, sent)

	_, err = m.Send("missing", "x", "y")
	require.Error(t, err)

	statuses := m.StatusAll()
	require.Len(t, statuses, 1)
	assert.Equal(t, "line1", statuses[0].LineID)
}
