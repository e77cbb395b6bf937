package store

import "context"

// Store is the whole-document persistence contract. There is no
// partial-field update: callers read the full document, mutate it, and write
// it back under their own mutual-exclusion discipline.
type Store interface {
	// ReadDocument decodes the document stored under key into v.
	// Returns ErrNotFound when no document exists for the key.
	ReadDocument(ctx context.Context, key string, v any) error

	// WriteDocument replaces the document stored under key with v.
	// Returns ErrBusy when the underlying resource is transiently locked.
	WriteDocument(ctx context.Context, key string, v any) error
}

// Well-known document keys.
const (
	ConversationsKey = "conversations"
	AgentsKey        = "agents"
	ApiKeysKey       = "api-keys"
	SessionKeyPrefix = "session:"
)

// SessionKey returns the document key for one line's session snapshot.
func SessionKey(lineID string) string {
	return SessionKeyPrefix + lineID
}
