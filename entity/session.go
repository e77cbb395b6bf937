package entity

import "time"

// Session statuses, ordered by the usual connect path. A session may fall
// back to disconnected from ready, or land in error on a fatal auth failure.
const (
	SessionIdle          = "idle"
	SessionInitializing  = "initializing"
	SessionQrReady       = "qr_ready"
	SessionAuthenticated = "authenticated"
	SessionReady         = "ready"
	SessionDisconnected  = "disconnected"
	SessionError         = "error"
)

// Disconnect reasons that confirm an intentional, user-driven logout.
// Anything else coming from the transport is treated as ambiguous.
const (
	DisconnectLogout     = "logout"
	DisconnectUserLogout = "user_logout"
)

// SessionInfo is the persisted snapshot of one line's transport session.
// The controller owns the live state; this record feeds the dashboard and
// survives restarts.
type SessionInfo struct {
	LineID         string    `json:"line_id" bson:"line_id"`
	Status         string    `json:"status" bson:"status"`
	PhoneNumber    string    `json:"phone_number,omitempty" bson:"phone_number,omitempty"`
	QrPayload      string    `json:"qr_payload,omitempty" bson:"qr_payload,omitempty"`
	LastDisconnect string    `json:"last_disconnect,omitempty" bson:"last_disconnect,omitempty"`
	MessageCount   int       `json:"message_count" bson:"message_count"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	LastQrAt       time.Time `json:"last_qr_at,omitempty" bson:"last_qr_at,omitempty"`
	ConnectedAt    time.Time `json:"connected_at,omitempty" bson:"connected_at,omitempty"`
}

// UserInitiated reports whether a disconnect reason confirms an explicit
// logout. Transport-internal reasons ("browser closed", "UNKNOWN", empty)
// must not be trusted to destroy credentials.
func UserInitiated(reason string) bool {
	return reason == DisconnectLogout || reason == DisconnectUserLogout
}
