// Package config loads GraphScopeProxy's configuration surface from the
// environment, via os.Getenv plus a validated struct (see cmd/api/main.go).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"graphscopeproxy/internal/resource"
)

// Config is the recognized configuration surface.
type Config struct {
	// Upstream app credentials.
	TenantID     string
	ClientID     string
	ClientSecret string
	UpstreamBase string

	// Bearer token settings.
	JwtSigningKey        []byte
	JwtIssuer            string
	JwtAudience          string
	JwtExpirationSeconds int

	// Scope policy.
	AllowedPlaceTypes     map[resource.Kind]bool
	AllowGenericResources bool
	MaxScopeSize          int
	UsePlacesAPI          bool
	ScopeCacheTTLSeconds  int

	// Cache backend.
	CacheBackend    string // "memory" or "distributed"
	CacheConnString string

	// API-key binding: apiKey -> set<groupId>, configuration-owned and
	// read-only at runtime.
	APIKeys map[string]map[string]struct{}

	// AdminKeyHash is a bcrypt hash of the admin key used for
	// /admin/refresh/{groupId}; the plaintext admin key is never stored.
	AdminKeyHash string

	// Listener.
	ListenAddr string

	// Upstream call deadline.
	UpstreamTimeout time.Duration
}

var validKinds = map[string]resource.Kind{
	"room":      resource.KindRoom,
	"workspace": resource.KindWorkspace,
	"equipment": resource.KindEquipment,
	"generic":   resource.KindGeneric,
}

// Load builds a Config from environment variables, applying the documented
// defaults.
func Load() (Config, error) {
	cfg := Config{
		TenantID:              os.Getenv("GSP_TENANT_ID"),
		ClientID:              os.Getenv("GSP_CLIENT_ID"),
		ClientSecret:          os.Getenv("GSP_CLIENT_SECRET"),
		UpstreamBase:          getenvDefault("GSP_UPSTREAM_BASE", "https://graph.microsoft.com"),
		JwtIssuer:             getenvDefault("GSP_JWT_ISSUER", "graphscopeproxy"),
		JwtAudience:           getenvDefault("GSP_JWT_AUDIENCE", "graphscopeproxy-clients"),
		JwtExpirationSeconds:  getenvIntDefault("GSP_JWT_EXPIRATION_SECONDS", 900),
		AllowGenericResources: getenvBoolDefault("GSP_ALLOW_GENERIC_RESOURCES", false),
		MaxScopeSize:          getenvIntDefault("GSP_MAX_SCOPE_SIZE", 500),
		UsePlacesAPI:          getenvBoolDefault("GSP_USE_PLACES_API", true),
		ScopeCacheTTLSeconds:  getenvIntDefault("GSP_SCOPE_CACHE_TTL_SECONDS", 900),
		CacheBackend:          getenvDefault("GSP_CACHE_BACKEND", "memory"),
		CacheConnString:       os.Getenv("GSP_CACHE_CONN_STRING"),
		ListenAddr:            getenvDefault("GSP_LISTEN_ADDR", ":8080"),
		UpstreamTimeout:       time.Duration(getenvIntDefault("GSP_UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		AdminKeyHash:          os.Getenv("GSP_ADMIN_KEY_HASH"),
	}

	key := os.Getenv("GSP_JWT_SIGNING_KEY")
	if len(key) < 32 {
		return Config{}, errors.New("config: GSP_JWT_SIGNING_KEY must be at least 32 bytes")
	}
	cfg.JwtSigningKey = []byte(key)

	kinds, err := parsePlaceTypes(getenvDefault("GSP_ALLOWED_PLACE_TYPES", "room,workspace"))
	if err != nil {
		return Config{}, err
	}
	cfg.AllowedPlaceTypes = kinds

	if cfg.CacheBackend != "memory" && cfg.CacheBackend != "distributed" {
		return Config{}, fmt.Errorf("config: unsupported CacheBackend %q", cfg.CacheBackend)
	}
	if cfg.CacheBackend == "distributed" && cfg.CacheConnString == "" {
		return Config{}, errors.New("config: GSP_CACHE_CONN_STRING is required when CacheBackend=distributed")
	}

	apiKeys, err := parseAPIKeys(os.Getenv("GSP_API_KEYS"))
	if err != nil {
		return Config{}, err
	}
	cfg.APIKeys = apiKeys

	return cfg, nil
}

// parsePlaceTypes parses a comma-separated AllowedPlaceTypes list.
func parsePlaceTypes(raw string) (map[resource.Kind]bool, error) {
	out := make(map[resource.Kind]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		kind, ok := validKinds[part]
		if !ok {
			return nil, fmt.Errorf("config: unknown place type %q", part)
		}
		out[kind] = true
	}
	return out, nil
}

// parseAPIKeys accepts raw JSON `{"apiKey":["groupId",...]}`.
func parseAPIKeys(raw string) (map[string]map[string]struct{}, error) {
	if raw == "" {
		return map[string]map[string]struct{}{}, nil
	}
	var decoded map[string][]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("config: parse GSP_API_KEYS: %w", err)
	}
	out := make(map[string]map[string]struct{}, len(decoded))
	for apiKey, groups := range decoded {
		set := make(map[string]struct{}, len(groups))
		for _, g := range groups {
			set[g] = struct{}{}
		}
		out[apiKey] = set
	}
	return out, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
