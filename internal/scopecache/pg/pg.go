// Package pg is the Postgres-backed distributed Scope Cache (C3) and
// token revocation store, used when Config.CacheBackend is "distributed".
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"graphscopeproxy/internal/resource"
	"graphscopeproxy/internal/scope"
	"graphscopeproxy/internal/scopecache"
)

// Store is a connection-pooled Postgres backend implementing both
// scopecache.Cache and token.RevocationStore, so a single distributed
// deployment shares one pool across both tables.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ scopecache.Cache = (*Store)(nil)

// Open opens a pooled connection to dsn via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, now: time.Now}, nil
}

// NewWithDB wraps an already-opened *sql.DB, used by tests against sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Put implements scopecache.Cache.
func (s *Store) Put(ctx context.Context, tokenID string, sc scope.Scope) error {
	payload, err := json.Marshal(sc.Resources)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into scope_cache(token_id, scope_id, group_id, payload, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (token_id) do update
		set scope_id = excluded.scope_id,
		    group_id = excluded.group_id,
		    payload = excluded.payload,
		    created_at = excluded.created_at,
		    expires_at = excluded.expires_at
	`, tokenID, sc.ID, sc.GroupID, payload, sc.CreatedAt, sc.ExpiresAt)
	return err
}

// Get implements scopecache.Cache.
func (s *Store) Get(ctx context.Context, tokenID string) (scope.Scope, bool, error) {
	var (
		scopeID   string
		groupID   string
		payload   []byte
		createdAt time.Time
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		select scope_id, group_id, payload, created_at, expires_at
		from scope_cache where token_id = $1
	`, tokenID).Scan(&scopeID, &groupID, &payload, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return scope.Scope{}, false, nil
	}
	if err != nil {
		return scope.Scope{}, false, err
	}
	if !s.now().Before(expiresAt) {
		_ = s.InvalidateToken(ctx, tokenID)
		return scope.Scope{}, false, nil
	}
	var resources []resource.Resource
	if err := json.Unmarshal(payload, &resources); err != nil {
		return scope.Scope{}, false, err
	}
	return scope.Scope{
		ID:        scopeID,
		GroupID:   groupID,
		Resources: resources,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, true, nil
}

// InvalidateGroup implements scopecache.Cache.
func (s *Store) InvalidateGroup(ctx context.Context, groupID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from scope_cache where group_id = $1`, groupID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// InvalidateToken implements scopecache.Cache.
func (s *Store) InvalidateToken(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `delete from scope_cache where token_id = $1`, tokenID)
	return err
}

// Revoke implements token.RevocationStore.
func (s *Store) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into token_revocations(token_id, expires_at)
		values ($1, $2)
		on conflict (token_id) do update set expires_at = excluded.expires_at
	`, tokenID, expiresAt)
	return err
}

// IsRevoked implements token.RevocationStore.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		select expires_at from token_revocations where token_id = $1
	`, tokenID).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !s.now().Before(expiresAt) {
		_, _ = s.db.ExecContext(ctx, `delete from token_revocations where token_id = $1`, tokenID)
		return false, nil
	}
	return true, nil
}
