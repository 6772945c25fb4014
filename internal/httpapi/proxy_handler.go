package httpapi

import (
	"net/http"
	"strings"

	"graphscopeproxy/internal/apierr"
	"graphscopeproxy/internal/audit"
	"graphscopeproxy/internal/authz"
	"graphscopeproxy/internal/filter"
)

// handleProxy returns a handler bound to a fixed upstream version segment
// ("v1.0" or "beta") that validates the bearer token, authorizes the
// request path against the caller's Scope, forwards it upstream, and
// filters the response when the Decider says to (C4 -> C5 -> C6 -> C7).
func (a *API) handleProxy(version string) http.HandlerFunc {
	prefix := "/" + version + "/"
	return func(w http.ResponseWriter, r *http.Request) {
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

		path := strings.TrimPrefix(r.URL.Path, prefix)

		decision, err := authz.Decide(path, r.Method, sc)
		if err != nil {
			_ = audit.LogEvent(r.Context(), "authz.deny", map[string]any{
				"groupId": sc.GroupID,
				"path":    r.URL.Path,
			})
			writeAPIError(w, r, err)
			return
		}

		result, err := a.proxy.Forward(r.Context(), version, path, r.URL.RawQuery, r.Method, r.Header, r.Body)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}

		body := result.Body
		if decision == authz.FilterCollection && result.StatusCode >= 200 && result.StatusCode < 300 {
			body = filter.Apply(body, sc)
		}

		for k, vv := range result.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.StatusCode)
		_, _ = w.Write(body)
	}
}
