// Package token owns the client's access/refresh credential persistence. The
// HTTP layer holds no copy of a token beyond the lifetime of one outgoing
// request; everything durable lives behind Store.
package token

import (
	"context"
	"sync"
	"time"
)

// AccessCredential is the persisted credential pair. ExpiresAt mirrors the
// access token's exp claim so callers can check staleness without decoding.
type AccessCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Store persists the single credential pair of the running installation.
type Store interface {
	// Load returns the stored credential, or (nil, nil) when none exists.
	Load(ctx context.Context) (*AccessCredential, error)

	// Save overwrites the stored credential.
	Save(ctx context.Context, cred *AccessCredential) error

	// Clear removes the stored credential. Clearing an empty store is not
	// an error.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu   sync.Mutex
	cred *AccessCredential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*AccessCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

func (s *MemoryStore) Save(ctx context.Context, cred *AccessCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cred
	s.cred = &c
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}
