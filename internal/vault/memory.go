package vault

import (
	"context"
	"sync"

	"github.com/teemow/authflow/internal/oauth"
)

// MemoryVault keeps credentials in process memory.
type MemoryVault struct {
	mu    sync.RWMutex
	creds *oauth.StoredCredentials
}

// NewMemoryVault returns an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{}
}

// Store replaces the stored credentials.
func (v *MemoryVault) Store(_ context.Context, creds oauth.StoredCredentials) error {
	c := cloneCredentials(creds)
	v.mu.Lock()
	v.creds = &c
	v.mu.Unlock()
	return nil
}

// Get returns a copy of the stored credentials.
func (v *MemoryVault) Get(_ context.Context) (*oauth.StoredCredentials, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.creds == nil {
		return nil, oauth.ErrNoCredentials
	}
	c := cloneCredentials(*v.creds)
	return &c, nil
}

// Clear removes the stored credentials.
func (v *MemoryVault) Clear(_ context.Context) error {
	v.mu.Lock()
	v.creds = nil
	v.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (v *MemoryVault) Ping(context.Context) error {
	return nil
}

func cloneCredentials(c oauth.StoredCredentials) oauth.StoredCredentials {
	c.Scopes = append([]string(nil), c.Scopes...)
	return c
}
