package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"WaDesk/internal/lib/sl"
)

// FileStore keeps one JSON file per document key under a data directory.
// Writes go through a temp file and an atomic rename; a sibling lock file
// held by another writer is reported as ErrBusy and retried with bounded
// exponential backoff.
type FileStore struct {
	dir        string
	maxRetries uint64
	log        *slog.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, maxRetries uint64, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &FileStore{
		dir:        dir,
		maxRetries: maxRetries,
		log:        log.With(sl.Module("filestore")),
	}, nil
}

func (s *FileStore) path(key string) string {
	// Keys may contain separators ("session:line-1"); keep them file-safe.
	name := strings.ReplaceAll(key, ":", "_")
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) lockPath(key string) string {
	return s.path(key) + ".lock"
}

func (s *FileStore) ReadDocument(_ context.Context, key string, v any) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("reading document %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding document %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) WriteDocument(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document %q: %w", key, err)
	}

	attempt := func() error {
		return s.writeOnce(key, data)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newWritePolicy(), s.maxRetries), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		s.log.Warn("document write gave up",
			slog.String("key", key),
			sl.Err(err),
		)
		return err
	}
	return nil
}

// writeOnce takes the lock file, writes a temp file and renames it over the
// target. A lock held by someone else surfaces as ErrBusy, which the retry
// policy treats as retryable.
func (s *FileStore) writeOnce(key string, data []byte) error {
	lock := s.lockPath(key)
	fd, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrBusy
		}
		return backoff.Permanent(fmt.Errorf("acquiring lock for %q: %w", key, err))
	}
	fd.Close()
	defer os.Remove(lock)

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return backoff.Permanent(fmt.Errorf("writing temp document %q: %w", key, err))
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return backoff.Permanent(fmt.Errorf("replacing document %q: %w", key, err))
	}
	return nil
}

func newWritePolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
