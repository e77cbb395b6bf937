package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"WaDesk/internal/lib/sl"
	"WaDesk/internal/store"
)

type keyRecord struct {
	Username string `json:"username"`
	Key      string `json:"key"`
}

type keysDoc struct {
	Keys []keyRecord `json:"keys"`
}

// Service manages agent API keys in the document store.
type Service struct {
	store store.Store
	mu    sync.Mutex
	log   *slog.Logger
}

func New(st store.Store, log *slog.Logger) *Service {
	return &Service{
		store: st,
		log:   log.With(sl.Module("keys")),
	}
}

func (s *Service) load(ctx context.Context) (*keysDoc, error) {
	doc := &keysDoc{}
	err := s.store.ReadDocument(ctx, store.ApiKeysKey, doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return doc, nil
}

// CheckApiKey resolves a key to its username.
func (s *Service) CheckApiKey(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	for _, record := range doc.Keys {
		if record.Key == key {
			return record.Username, nil
		}
	}
	return "", fmt.Errorf("api key not found")
}

// GenerateApiKey returns the existing key for a username or mints a new one.
func (s *Service) GenerateApiKey(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	for _, record := range doc.Keys {
		if record.Username == username {
			return record.Key, nil
		}
	}

	key := uuid.NewString()
	doc.Keys = append(doc.Keys, keyRecord{Username: username, Key: key})
	if err := s.store.WriteDocument(ctx, store.ApiKeysKey, doc); err != nil {
		return "", err
	}

	s.log.Info("api key issued", slog.String("username", username))
	return key, nil
}
