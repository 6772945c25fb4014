package scope

import (
	"errors"
	"strings"
)

// ErrUpstreamUnavailable indicates group enumeration failed; no partial
// scope is ever stored when this is returned.
var ErrUpstreamUnavailable = errors.New("scope: upstream unavailable")

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
