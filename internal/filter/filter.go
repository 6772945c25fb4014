// Package filter implements the Response Filter (C7): a pure rewrite of an
// upstream JSON body so that only in-scope items remain, applied when the
// Authorization Decider (C5) returned FilterCollection.
package filter

import (
	"encoding/json"

	"graphscopeproxy/internal/obs"
	"graphscopeproxy/internal/scope"
)

// identifierFields lists the JSON paths checked, in order, to extract a
// candidate identifier from a collection element.
var identifierFields = []string{"id", "emailAddress.address", "mail", "userPrincipalName"}

// Apply filters body against sc. On any parse failure it returns body
// unmodified — the filter never errors and never has upstream side
// effects.
func Apply(body []byte, sc scope.Scope) []byte {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}

	if rawValue, ok := doc["value"]; ok {
		items, ok := rawValue.([]any)
		if !ok {
			return body
		}
		kept := make([]any, 0, len(items))
		dropped := 0
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if matches(obj, sc) {
				kept = append(kept, item)
			} else {
				dropped++
			}
		}
		if dropped > 0 {
			obs.FilterDropped.Add(float64(dropped))
		}
		doc["value"] = kept
		out, err := json.Marshal(doc)
		if err != nil {
			return body
		}
		return out
	}

	// Single-object collection response (e.g. one room's details).
	if matches(doc, sc) {
		return body
	}
	obs.FilterDropped.Inc()
	return []byte("{}")
}

func matches(obj map[string]any, sc scope.Scope) bool {
	for _, field := range identifierFields {
		id, ok := lookup(obj, field)
		if !ok || id == "" {
			continue
		}
		if sc.Contains(id) {
			return true
		}
	}
	return false
}

// lookup resolves a dotted field path (e.g. "emailAddress.address")
// against a decoded JSON object, returning its string value if present.
func lookup(obj map[string]any, path string) (string, bool) {
	cur := any(obj)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		v, ok := m[key]
		if !ok {
			return "", false
		}
		cur = v
		start = i + 1
	}
	s, ok := cur.(string)
	return s, ok
}
