// Package credentials persists the client's bearer tokens and the logged-in
// marker cookie.
package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
)

// Storage keys shared by every backend.
const (
	KeyAccessToken  = "lt_access_token"
	KeyRefreshToken = "lt_refresh_token"
)

// Store is a string key/value store for credentials.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// AccessToken returns the stored access token, or "" when none is stored.
func AccessToken(ctx context.Context, store Store) (string, error) {
	return lookup(ctx, store, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when none is stored.
func RefreshToken(ctx context.Context, store Store) (string, error) {
	return lookup(ctx, store, KeyRefreshToken)
}

// SaveTokens stores both tokens of pair.
func SaveTokens(ctx context.Context, store Store, pair api.TokenPair) error {
	if store == nil {
		return fmt.Errorf("credential store is required")
	}
	if strings.TrimSpace(pair.AccessToken) == "" {
		return fmt.Errorf("access token is required")
	}
	if err := store.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	if err := store.Set(ctx, KeyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ClearTokens removes both tokens.
func ClearTokens(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	if err := store.Remove(ctx, KeyAccessToken); err != nil {
		return fmt.Errorf("remove access token: %w", err)
	}
	if err := store.Remove(ctx, KeyRefreshToken); err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func lookup(ctx context.Context, store Store, key string) (string, error) {
	if store == nil {
		return "", nil
	}
	value, ok, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Remove deletes key. Missing keys are ignored.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
