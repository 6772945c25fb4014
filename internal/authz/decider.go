// Package authz implements the Authorization Decider (C5): from an
// upstream URL path and method, computes Allow, Deny, or FilterCollection
// against a caller's Scope.
package authz

import (
	"net/url"
	"strings"

	"graphscopeproxy/internal/apierr"
	"graphscopeproxy/internal/scope"
)

// Decision is the outcome of deciding a single proxied request.
type Decision int

const (
	// Allow forwards the request unmodified.
	Allow Decision = iota
	// Deny rejects the request without forwarding upstream.
	Deny
	// FilterCollection forwards the request and filters the response body
	// against the caller's Scope (C7).
	FilterCollection
)

// Decide inspects path (the upstream path after the version segment,
// percent-decoded) against sc and returns the Decision. method is accepted
// for interface symmetry with the upstream call site but the path-shape
// rules below do not currently vary by method. For Deny it also returns an
// OutOfScope *apierr.Error whose Resource is the segment that failed the
// match.
func Decide(path, method string, sc scope.Scope) (Decision, error) {
	_ = method
	decoded, err := url.PathUnescape(path)
	if err != nil {
		decoded = path
	}
	trimmed := strings.Trim(decoded, "/")
	if trimmed == "" {
		return Allow, nil
	}
	segments := strings.Split(trimmed, "/")
	first := strings.ToLower(segments[0])

	switch first {
	case "users", "calendars":
		if len(segments) < 2 {
			// bare "/users" or "/calendars": a collection, no id to test.
			return FilterCollection, nil
		}
		target := segments[1]
		if sc.Contains(target) {
			return Allow, nil
		}
		return Deny, apierr.Deny(target)
	case "rooms", "places":
		// Graph appends odata type-cast segments here (e.g.
		// "places/microsoft.graph.room"), never a resource id.
		return FilterCollection, nil
	}

	if last := strings.ToLower(segments[len(segments)-1]); last == "calendars" {
		return FilterCollection, nil
	}

	return Allow, nil
}
