package token

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocations is an in-process RevocationStore. Entries self-expire:
// IsRevoked treats a past-expiry entry as not-revoked and sweeps it.
type MemoryRevocations struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations constructs an empty in-process RevocationStore.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{expires: make(map[string]time.Time), now: time.Now}
}

// Revoke implements RevocationStore.
func (m *MemoryRevocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[tokenID] = expiresAt
	return nil
}

// IsRevoked implements RevocationStore.
func (m *MemoryRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.expires, tokenID)
		return false, nil
	}
	return true, nil
}
