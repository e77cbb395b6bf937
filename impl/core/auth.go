package core

import (
	"context"
	"fmt"
	"time"

	"WaDesk/entity"
)

// AuthenticateByToken resolves a bearer token to an agent identity. The
// static operator key from config wins; everything else is looked up in the
// API key store.
func (c *Core) AuthenticateByToken(token string) (*entity.UserAuth, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	if c.authKey != "" && token == c.authKey {
		return &entity.UserAuth{Username: "operator", Role: "admin", Token: token}, nil
	}
	if c.keys == nil {
		return nil, fmt.Errorf("api keys not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	username, err := c.keys.CheckApiKey(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("checking api key: %w", err)
	}
	return &entity.UserAuth{Username: username, Role: "agent", Token: token}, nil
}

// ValidateToken adapts AuthenticateByToken for the WebSocket upgrade path.
func (c *Core) ValidateToken(token string) (string, error) {
	user, err := c.AuthenticateByToken(token)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GenerateApiKey issues (or returns the existing) API key for a username.
func (c *Core) GenerateApiKey(username string) (string, error) {
	if c.keys == nil {
		return "", fmt.Errorf("api keys not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.keys.GenerateApiKey(ctx, username)
}
