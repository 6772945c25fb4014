// Package token implements the Token Service (C4): minting and validating
// signed bearer tokens, and tracking revocation ahead of natural expiry.
// The scope descriptor is carried by reference — the token's jti is the
// sole key into the Scope Cache; the JWT itself never embeds resources.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"graphscopeproxy/internal/apierr"
	"graphscopeproxy/internal/scope"
	"graphscopeproxy/internal/scopecache"
)

// Claims is the JWT claim set minted by Service.Mint. It carries only
// advisory fields plus the jti that resolves to a Scope via the cache —
// never the scope contents themselves.
type Claims struct {
	jwt.RegisteredClaims
	GroupID       string `json:"gid"`
	ResourceCount int    `json:"rc"`
}

// Minted is the result of a successful mint, carrying what the login/refresh
// handlers need to build their response bodies.
type Minted struct {
	TokenString string
	TokenID     string
	ExpiresIn   int // seconds
}

// RevocationStore tracks tokenIds revoked ahead of their natural expiry.
// Entries are expected to self-expire at expiresAt; implementations may
// do this lazily on IsRevoked.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Service mints, validates, and revokes bearer tokens, resolving their
// scope descriptor through a Cache.
type Service struct {
	signingKey  []byte
	issuer      string
	audience    string
	ttl         time.Duration
	skew        time.Duration
	cache       scopecache.Cache
	revocations RevocationStore
	now         func() time.Time
}

// Config carries Service construction parameters.
type Config struct {
	SigningKey  []byte
	Issuer      string
	Audience    string
	TTL         time.Duration
	Cache       scopecache.Cache
	Revocations RevocationStore
}

// New constructs a token Service.
func New(cfg Config) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		signingKey:  cfg.SigningKey,
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		ttl:         ttl,
		skew:        5 * time.Minute,
		cache:       cfg.Cache,
		revocations: cfg.Revocations,
		now:         time.Now,
	}
}

// Mint stores sc in the Scope Cache under a freshly generated tokenId and
// returns a signed JWT referencing it.
func (s *Service) Mint(ctx context.Context, subject string, sc scope.Scope) (Minted, error) {
	tokenID, err := newTokenID()
	if err != nil {
		return Minted{}, apierr.Wrap(apierr.CodeInternalError, "generate token id", err)
	}

	now := s.now().UTC()
	exp := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
		},
		GroupID:       sc.GroupID,
		ResourceCount: sc.ResourceCount(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return Minted{}, apierr.Wrap(apierr.CodeInternalError, "sign token", err)
	}

	// The cache entry backing this token must outlive the token itself: a
	// scope stamped with a shorter TTL at an earlier mint (e.g. the original
	// login) would otherwise evict before this token's own exp.
	if !sc.ExpiresAt.After(exp) {
		sc = sc.Renew(exp.Sub(now), now)
	}
	if err := s.cache.Put(ctx, tokenID, sc); err != nil {
		return Minted{}, apierr.Wrap(apierr.CodeInternalError, "store scope", err)
	}

	return Minted{TokenString: signed, TokenID: tokenID, ExpiresIn: int(s.ttl.Seconds())}, nil
}

// Validate parses and verifies tokenString, rejects revoked or expired
// tokens, and resolves its Scope from the cache.
func (s *Service) Validate(ctx context.Context, tokenString string) (scope.Scope, string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithLeeway(s.skew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return scope.Scope{}, "", apierr.Wrap(apierr.CodeTokenExpired, "token expired", err)
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return scope.Scope{}, "", apierr.Wrap(apierr.CodeSignatureInvalid, "signature invalid", err)
		}
		return scope.Scope{}, "", apierr.Wrap(apierr.CodeTokenMalformed, "malformed token", err)
	}
	if !parsed.Valid || claims.ID == "" {
		return scope.Scope{}, "", apierr.New(apierr.CodeTokenMalformed, "malformed token")
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return scope.Scope{}, "", apierr.Wrap(apierr.CodeInternalError, "check revocation", err)
		}
		if revoked {
			return scope.Scope{}, "", apierr.New(apierr.CodeTokenRevoked, "token revoked")
		}
	}

	sc, ok, err := s.cache.Get(ctx, claims.ID)
	if err != nil {
		return scope.Scope{}, "", apierr.Wrap(apierr.CodeInternalError, "resolve scope", err)
	}
	if !ok {
		return scope.Scope{}, "", apierr.New(apierr.CodeScopeMissing, "scope missing or invalidated")
	}
	return sc, claims.ID, nil
}

// Revoke extracts the tokenId from tokenString (without requiring it to
// still be valid beyond signature+structure) and inserts it into the
// revocation set until its natural expiry. Idempotent.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(s.skew))
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return apierr.Wrap(apierr.CodeTokenMalformed, "malformed token", err)
	}
	if claims.ID == "" {
		return apierr.New(apierr.CodeTokenMalformed, "malformed token")
	}
	exp := s.now().UTC().Add(s.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, claims.ID, exp); err != nil {
		return apierr.Wrap(apierr.CodeInternalError, "revoke token", err)
	}
	return s.cache.InvalidateToken(ctx, claims.ID)
}

// Subject extracts the sub claim from tokenString without requiring it to
// still be unexpired, for call sites (refresh) that already validated the
// token through Validate and only need the identity to re-mint under.
func (s *Service) Subject(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(s.skew))
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return "", apierr.Wrap(apierr.CodeTokenMalformed, "malformed token", err)
	}
	return claims.Subject, nil
}

func newTokenID() (string, error) {
	var buf [16]byte // 128 bits
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}
