// Package scopecache implements the Scope Cache (C3): the by-reference
// store mapping a token's jti to the Scope materialized for it at mint
// time, indexed by group so a directory-group refresh can invalidate every
// token minted against that group in one call.
package scopecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"graphscopeproxy/internal/obs"
	"graphscopeproxy/internal/scope"
)

// ErrNotFound names the case where a token id is not present (never
// minted, expired and swept, or invalidated). The Cache implementations in
// this module report that case as ok=false from Get and do not return
// ErrNotFound.
var ErrNotFound = errors.New("scopecache: not found")

// Cache is the Scope Cache contract. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Put stores s under tokenID, indexed under s.GroupID for later
	// group-wide invalidation.
	Put(ctx context.Context, tokenID string, s scope.Scope) error

	// Get returns the Scope stored under tokenID. ok is false when the
	// entry is absent or has passed its Scope.ExpiresAt.
	Get(ctx context.Context, tokenID string) (s scope.Scope, ok bool, err error)

	// InvalidateGroup removes every cached entry indexed under groupID,
	// returning the count removed.
	InvalidateGroup(ctx context.Context, groupID string) (int, error)

	// InvalidateToken removes a single entry by tokenID.
	InvalidateToken(ctx context.Context, tokenID string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Memory is an in-process Cache backed by a mutex-guarded map, suitable for
// single-instance deployments ("memory" backend).
type Memory struct {
	mu      sync.RWMutex
	entries map[string]scope.Scope
	byGroup map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemory constructs an empty in-process Cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]scope.Scope),
		byGroup: make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Put implements Cache.
func (m *Memory) Put(ctx context.Context, tokenID string, s scope.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tokenID] = s
	set, ok := m.byGroup[s.GroupID]
	if !ok {
		set = make(map[string]struct{})
		m.byGroup[s.GroupID] = set
	}
	set[tokenID] = struct{}{}
	return nil
}

// Get implements Cache.
func (m *Memory) Get(ctx context.Context, tokenID string) (scope.Scope, bool, error) {
	m.mu.RLock()
	s, ok := m.entries[tokenID]
	m.mu.RUnlock()
	if !ok {
		obs.ScopeCacheHits.WithLabelValues("miss").Inc()
		return scope.Scope{}, false, nil
	}
	if s.Expired(m.now()) {
		obs.ScopeCacheHits.WithLabelValues("expired").Inc()
		_ = m.InvalidateToken(ctx, tokenID)
		return scope.Scope{}, false, nil
	}
	obs.ScopeCacheHits.WithLabelValues("hit").Inc()
	return s, true, nil
}

// InvalidateGroup implements Cache.
func (m *Memory) InvalidateGroup(ctx context.Context, groupID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byGroup[groupID]
	if !ok {
		return 0, nil
	}
	for tokenID := range set {
		delete(m.entries, tokenID)
	}
	count := len(set)
	delete(m.byGroup, groupID)
	return count, nil
}

// InvalidateToken implements Cache.
func (m *Memory) InvalidateToken(ctx context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[tokenID]
	if !ok {
		return nil
	}
	delete(m.entries, tokenID)
	if set, ok := m.byGroup[s.GroupID]; ok {
		delete(set, tokenID)
		if len(set) == 0 {
			delete(m.byGroup, s.GroupID)
		}
	}
	return nil
}

// Close implements Cache. Memory holds no external resources.
func (m *Memory) Close() error { return nil }
