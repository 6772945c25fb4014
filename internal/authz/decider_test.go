package authz

import (
	"errors"
	"testing"
	"time"

	"graphscopeproxy/internal/apierr"
	"graphscopeproxy/internal/resource"
	"graphscopeproxy/internal/scope"
)

func testScope() scope.Scope {
	now := time.Now().UTC()
	return scope.Scope{
		GroupID: "g1",
		Resources: []resource.Resource{
			{ID: "r1", Mail: "room-a@x.com", Kind: resource.KindRoom},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestDecideAllowsInScopeUser(t *testing.T) {
	d, err := Decide("/users/room-a@x.com/calendar/events", "GET", testScope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Allow {
		t.Fatalf("expected Allow, got %v", d)
	}
}

func TestDecideDeniesOutOfScopeUser(t *testing.T) {
	d, err := Decide("/users/bob@x.com/calendar/events", "GET", testScope())
	if d != Deny {
		t.Fatalf("expected Deny, got %v", d)
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != apierr.CodeOutOfScope || apiErr.Resource != "bob@x.com" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecideCalendarsByID(t *testing.T) {
	d, _ := Decide("/calendars/room-a@x.com/events", "GET", testScope())
	if d != Allow {
		t.Fatalf("expected Allow for in-scope calendar id, got %v", d)
	}
	d, _ = Decide("/calendars/other@x.com/events", "GET", testScope())
	if d != Deny {
		t.Fatalf("expected Deny for out-of-scope calendar id, got %v", d)
	}
}

func TestDecidePlacesCollection(t *testing.T) {
	d, err := Decide("/places/microsoft.graph.room", "GET", testScope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != FilterCollection {
		t.Fatalf("expected FilterCollection, got %v", d)
	}
}

func TestDecideRoomsCollection(t *testing.T) {
	d, _ := Decide("/rooms", "GET", testScope())
	if d != FilterCollection {
		t.Fatalf("expected FilterCollection, got %v", d)
	}
}

func TestDecideBareCalendarsCollection(t *testing.T) {
	d, _ := Decide("/calendars", "GET", testScope())
	if d != FilterCollection {
		t.Fatalf("expected FilterCollection, got %v", d)
	}
}

func TestDecideNestedCalendarsCollectionSuffix(t *testing.T) {
	d, _ := Decide("/groups/g1/calendars", "GET", testScope())
	if d != FilterCollection {
		t.Fatalf("expected FilterCollection, got %v", d)
	}
}

func TestDecideAllowsOutOfModelPath(t *testing.T) {
	d, err := Decide("/sites/root", "GET", testScope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Allow {
		t.Fatalf("expected Allow for out-of-model path, got %v", d)
	}
}

func TestDecideEmptyPathAllows(t *testing.T) {
	d, _ := Decide("/", "GET", testScope())
	if d != Allow {
		t.Fatalf("expected Allow for empty path, got %v", d)
	}
}

func TestDecideCaseInsensitiveMatch(t *testing.T) {
	d, _ := Decide("/Users/ROOM-A@X.COM/events", "GET", testScope())
	if d != Allow {
		t.Fatalf("expected case-insensitive match to allow, got %v", d)
	}
}
