package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"graphscopeproxy/internal/resource"
	"graphscopeproxy/internal/scope"
)

func TestPutUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into scope_cache").
		WithArgs("tok1", "scope1", "g1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewWithDB(db)
	now := time.Now().UTC()
	sc := scope.Scope{
		ID:        "scope1",
		GroupID:   "g1",
		Resources: []resource.Resource{{ID: "r1", Mail: "room-a@x.com", Kind: resource.KindRoom}},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := store.Put(context.Background(), "tok1", sc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	payload := `[{"id":"r1","mail":"room-a@x.com","kind":"room"}]`
	mock.ExpectQuery("select scope_id, group_id, payload, created_at, expires_at").
		WithArgs("tok1").
		WillReturnRows(sqlmock.NewRows([]string{"scope_id", "group_id", "payload", "created_at", "expires_at"}).
			AddRow("scope1", "g1", payload, now, now.Add(time.Hour)))

	store := NewWithDB(db)
	sc, ok, err := store.Get(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit")
	}
	if sc.GroupID != "g1" || sc.ResourceCount() != 1 {
		t.Fatalf("unexpected scope: %+v", sc)
	}
}

func TestGetMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select scope_id, group_id, payload, created_at, expires_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	store := NewWithDB(db)
	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss")
	}
}

func TestGetExpiredInvalidates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	past := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery("select scope_id, group_id, payload, created_at, expires_at").
		WithArgs("tok1").
		WillReturnRows(sqlmock.NewRows([]string{"scope_id", "group_id", "payload", "created_at", "expires_at"}).
			AddRow("scope1", "g1", `[]`, past.Add(-time.Hour), past))
	mock.ExpectExec("delete from scope_cache where token_id").
		WithArgs("tok1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewWithDB(db)
	_, ok, err := store.Get(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to miss")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInvalidateGroup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("delete from scope_cache where group_id").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewWithDB(db)
	n, err := store.InvalidateGroup(context.Background(), "g1")
	if err != nil {
		t.Fatalf("InvalidateGroup: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}
}

func TestRevokeAndIsRevoked(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	future := time.Now().UTC().Add(time.Hour)
	mock.ExpectExec("insert into token_revocations").
		WithArgs("tok1", future).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select expires_at from token_revocations").
		WithArgs("tok1").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(future))

	store := NewWithDB(db)
	if err := store.Revoke(context.Background(), "tok1", future); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := store.IsRevoked(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected revoked=true")
	}
}

func TestIsRevokedNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select expires_at from token_revocations").
		WithArgs("tok1").
		WillReturnError(sql.ErrNoRows)

	store := NewWithDB(db)
	revoked, err := store.IsRevoked(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatalf("expected revoked=false for unknown token")
	}
}
