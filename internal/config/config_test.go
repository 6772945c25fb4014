package config

import (
	"os"
	"testing"

	"graphscopeproxy/internal/resource"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GSP_TENANT_ID", "GSP_CLIENT_ID", "GSP_CLIENT_SECRET", "GSP_UPSTREAM_BASE",
		"GSP_JWT_SIGNING_KEY", "GSP_JWT_ISSUER", "GSP_JWT_AUDIENCE", "GSP_JWT_EXPIRATION_SECONDS",
		"GSP_ALLOWED_PLACE_TYPES", "GSP_ALLOW_GENERIC_RESOURCES", "GSP_MAX_SCOPE_SIZE",
		"GSP_USE_PLACES_API", "GSP_SCOPE_CACHE_TTL_SECONDS", "GSP_CACHE_BACKEND",
		"GSP_CACHE_CONN_STRING", "GSP_API_KEYS", "GSP_ADMIN_KEY_HASH", "GSP_LISTEN_ADDR",
		"GSP_UPSTREAM_TIMEOUT_SECONDS",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadRejectsShortSigningKey(t *testing.T) {
	clearEnv(t)
	os.Setenv("GSP_JWT_SIGNING_KEY", "tooshort")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for short signing key")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("GSP_JWT_SIGNING_KEY", "0123456789012345678901234567890123456789")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UpstreamBase != "https://graph.microsoft.com" {
		t.Fatalf("unexpected default UpstreamBase: %q", cfg.UpstreamBase)
	}
	if cfg.MaxScopeSize != 500 {
		t.Fatalf("unexpected default MaxScopeSize: %d", cfg.MaxScopeSize)
	}
	if !cfg.UsePlacesAPI {
		t.Fatalf("expected UsePlacesAPI default true")
	}
	if cfg.CacheBackend != "memory" {
		t.Fatalf("unexpected default CacheBackend: %q", cfg.CacheBackend)
	}
	want := map[resource.Kind]bool{resource.KindRoom: true, resource.KindWorkspace: true}
	if len(cfg.AllowedPlaceTypes) != len(want) {
		t.Fatalf("unexpected default AllowedPlaceTypes: %+v", cfg.AllowedPlaceTypes)
	}
	for k := range want {
		if !cfg.AllowedPlaceTypes[k] {
			t.Fatalf("expected %q in default AllowedPlaceTypes", k)
		}
	}
}

func TestLoadRejectsUnknownPlaceType(t *testing.T) {
	clearEnv(t)
	os.Setenv("GSP_JWT_SIGNING_KEY", "0123456789012345678901234567890123456789")
	os.Setenv("GSP_ALLOWED_PLACE_TYPES", "room,spaceship")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown place type")
	}
}

func TestLoadRequiresConnStringForDistributedCache(t *testing.T) {
	clearEnv(t)
	os.Setenv("GSP_JWT_SIGNING_KEY", "0123456789012345678901234567890123456789")
	os.Setenv("GSP_CACHE_BACKEND", "distributed")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when distributed cache has no conn string")
	}
}

func TestLoadParsesAPIKeys(t *testing.T) {
	clearEnv(t)
	os.Setenv("GSP_JWT_SIGNING_KEY", "0123456789012345678901234567890123456789")
	os.Setenv("GSP_API_KEYS", `{"key-a":["group-1","group-2"],"key-b":["group-3"]}`)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	groups, ok := cfg.APIKeys["key-a"]
	if !ok {
		t.Fatalf("expected key-a binding")
	}
	if _, ok := groups["group-1"]; !ok {
		t.Fatalf("expected group-1 bound to key-a")
	}
	if _, ok := groups["group-2"]; !ok {
		t.Fatalf("expected group-2 bound to key-a")
	}
	if _, ok := cfg.APIKeys["key-b"]["group-3"]; !ok {
		t.Fatalf("expected group-3 bound to key-b")
	}
}

func TestLoadRejectsMalformedAPIKeys(t *testing.T) {
	clearEnv(t)
	os.Setenv("GSP_JWT_SIGNING_KEY", "0123456789012345678901234567890123456789")
	os.Setenv("GSP_API_KEYS", `not-json`)
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed GSP_API_KEYS")
	}
}
