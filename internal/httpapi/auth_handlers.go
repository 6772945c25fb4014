package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"graphscopeproxy/internal/apierr"
	"graphscopeproxy/internal/audit"
)

type loginRequest struct {
	APIKey  string `json:"apiKey"`
	GroupID string `json:"groupId"`
}

type loginResponse struct {
	Token         string `json:"token"`
	GroupID       string `json:"groupId"`
	ResourceCount int    `json:"resourceCount"`
	ExpiresIn     int    `json:"expiresIn"`
}

// handleLogin exchanges {apiKey, groupId} for a bearer token, materializing
// a fresh Scope from upstream group membership.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err.Error())
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	req.GroupID = strings.TrimSpace(req.GroupID)
	if req.APIKey == "" || req.GroupID == "" {
		writeError(w, r, "apiKey and groupId are required")
		return
	}

	groups, ok := a.cfg.APIKeys[req.APIKey]
	if !ok {
		writeAPIError(w, r, apierr.New(apierr.CodeInvalidCredentials, "unknown api key"))
		return
	}
	if _, bound := groups[req.GroupID]; !bound {
		writeAPIError(w, r, apierr.New(apierr.CodeInvalidCredentials, "api key not bound to this group"))
		return
	}

	sc, err := a.builder.Build(r.Context(), req.GroupID)
	if err != nil {
		writeAPIError(w, r, apierr.Wrap(apierr.CodeUpstreamUnavailable, "build scope", err))
		return
	}
	if sc.ResourceCount() == 0 {
		writeAPIError(w, r, apierr.New(apierr.CodeEmptyScope, "group has no admissible resources"))
		return
	}

	subject := apiKeyHandle(req.APIKey)
	minted, err := a.tokens.Mint(r.Context(), subject, sc)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	ctx := audit.WithSubject(r.Context(), subject)
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"groupId":       req.GroupID,
		"resourceCount": sc.ResourceCount(),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:         minted.TokenString,
		GroupID:       sc.GroupID,
		ResourceCount: sc.ResourceCount(),
		ExpiresIn:     minted.ExpiresIn,
	})
}

type refreshResponse struct {
	Token         string `json:"token"`
	GroupID       string `json:"groupId"`
	ResourceCount int    `json:"resourceCount"`
	ExpiresIn     int    `json:"expiresIn"`
}

// handleRefresh mints a new token from the caller's live one, revoking the
// old token id.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	bearer, ok := bearerToken(r)
	if !ok {
		writeAPIError(w, r, apierr.New(apierr.CodeTokenMalformed, "missing bearer token"))
		return
	}

	sc, _, err := a.tokens.Validate(r.Context(), bearer)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	subject, err := a.tokens.Subject(bearer)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	minted, err := a.tokens.Mint(r.Context(), subject, sc)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := a.tokens.Revoke(r.Context(), bearer); err != nil {
		writeAPIError(w, r, err)
		return
	}

	ctx := audit.WithSubject(r.Context(), subject)
	_ = audit.LogEvent(ctx, "auth.refresh", map[string]any{
		"groupId":       sc.GroupID,
		"resourceCount": sc.ResourceCount(),
	})

	writeJSON(w, http.StatusOK, refreshResponse{
		Token:         minted.TokenString,
		GroupID:       sc.GroupID,
		ResourceCount: sc.ResourceCount(),
		ExpiresIn:     minted.ExpiresIn,
	})
}

// handleLogout revokes the caller's live token ahead of its natural expiry.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	bearer, ok := bearerToken(r)
	if !ok {
		writeAPIError(w, r, apierr.New(apierr.CodeTokenMalformed, "missing bearer token"))
		return
	}

	sc, _, validateErr := a.tokens.Validate(r.Context(), bearer)
	if err := a.tokens.Revoke(r.Context(), bearer); err != nil {
		writeAPIError(w, r, err)
		return
	}

	fields := map[string]any{}
	if validateErr == nil {
		fields["groupId"] = sc.GroupID
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", fields)

	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// apiKeyHandle derives an audit-safe subject handle from an api key,
// never the key itself: a short SHA-256 fingerprint of it.
func apiKeyHandle(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "key:" + hex.EncodeToString(sum[:8])
}

