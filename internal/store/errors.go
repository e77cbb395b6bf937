package store

import "errors"

var (
	// ErrNotFound means no document exists under the requested key.
	ErrNotFound = errors.New("document not found")

	// ErrBusy means the underlying resource is locked by another writer.
	// Busy writes are retried with bounded backoff before surfacing.
	ErrBusy = errors.New("store busy")
)
