package httpapi

import (
	"net/http"
	"strings"

	"graphscopeproxy/internal/apierr"
	"graphscopeproxy/internal/audit"
)

// handleAdminRefresh invalidates every cached scope for a group, forcing
// every token minted against it to resolve ScopeMissing on next validate.
func (a *API) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	groupID := strings.TrimPrefix(r.URL.Path, "/admin/refresh/")
	groupID = strings.Trim(groupID, "/")
	if groupID == "" {
		writeError(w, r, "groupId is required")
		return
	}

	if !a.compareAdminKey(r.Header.Get("X-Admin-Key")) {
		writeAPIError(w, r, apierr.New(apierr.CodeInvalidCredentials, "invalid admin key"))
		return
	}

	count, err := a.cache.InvalidateGroup(r.Context(), groupID)
	if err != nil {
		writeAPIError(w, r, apierr.Wrap(apierr.CodeInternalError, "invalidate group", err))
		return
	}

	_ = audit.LogEvent(r.Context(), "admin.group_refresh", map[string]any{
		"groupId": groupID,
		"evicted": count,
	})

	writeJSON(w, http.StatusOK, map[string]any{"groupId": groupID, "invalidated": count})
}
