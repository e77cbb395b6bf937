package session

// EventKind is the normalized internal event set the controller consumes.
// Transports emit a larger, library-specific event surface; the adapter
// feeding a controller maps it down to these.
type EventKind string

const (
	EventQrIssued        EventKind = "qr_issued"
	EventAuthenticated   EventKind = "authenticated"
	EventReady           EventKind = "ready"
	EventMessageReceived EventKind = "message_received"
	EventDisconnected    EventKind = "disconnected"
	EventAuthFailure     EventKind = "auth_failure"
)

// TransportEvent is one normalized lifecycle or message event from the
// messaging client.
type TransportEvent struct {
	Kind EventKind

	// QrPayload is set on qr_issued.
	QrPayload string

	// PhoneNumber is set on ready.
	PhoneNumber string

	// Reason is set on disconnected. Anything that is not a confirmed user
	// logout is treated as ambiguous and recoverable.
	Reason string

	// Message fields, set on message_received.
	From        string
	Text        string
	ContactName string
}

// Transport is the live messaging client session for one line.
type Transport interface {
	SendMessage(destination, text string) error
	GetState() string
	Logout() error
	Destroy() error
}

// Factory builds a transport for a line. Raw client events must be delivered
// to the given handler already normalized.
type Factory interface {
	New(lineID string, events func(TransportEvent)) (Transport, error)
}

// CredentialStore persists transport credential artifacts per line. Purge
// may report a transient busy condition and is retried by the controller.
type CredentialStore interface {
	Purge(lineID string) error
	Exists(lineID string) bool
}
