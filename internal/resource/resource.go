// Package resource models the admissible targets of a scope — mailboxes,
// rooms, desks and equipment classified out of raw directory membership.
package resource

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the classification assigned to a directory member.
type Kind string

const (
	KindRoom      Kind = "room"
	KindWorkspace Kind = "workspace"
	KindEquipment Kind = "equipment"
	KindGeneric   Kind = "generic"
)

// Member is a raw directory record as returned by group membership
// enumeration, prior to classification.
type Member struct {
	ID          string
	Mail        string
	DisplayName string
}

// Resource is a single admissible target inside a Scope.
type Resource struct {
	ID          string `json:"id,omitempty"`
	Mail        string `json:"mail,omitempty"`
	Kind        Kind   `json:"kind"`
	DisplayName string `json:"displayName,omitempty"`
	Capacity    *int   `json:"capacity,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Key returns the dedup/match key for a Resource: its lowercased mail if
// present, otherwise its id. Matching code should compare both id and mail,
// but dedup is keyed on whichever identifies the resource.
func (r Resource) Key() string {
	if r.Mail != "" {
		return strings.ToLower(r.Mail)
	}
	return strings.ToLower(r.ID)
}

// Matches reports whether the given URL path segment identifies this
// Resource, by case-insensitive comparison against id or mail.
func (r Resource) Matches(segment string) bool {
	segment = strings.ToLower(segment)
	if r.ID != "" && strings.EqualFold(r.ID, segment) {
		return true
	}
	if r.Mail != "" && strings.ToLower(r.Mail) == segment {
		return true
	}
	return false
}

var (
	equipmentTerms = []string{"equipment", "projector", "device", "camera", "tv", "screen"}
	roomTerms      = []string{"room", "meeting", "conference", "boardroom", "meetingroom"}
	workspaceTerms = []string{"workspace", "desk", "office", "workstation"}

	capacityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)cap:?\s*(\d+)`),
		regexp.MustCompile(`(?i)capacity:?\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*people?\b`),
		regexp.MustCompile(`(?i)(\d+)[-\s]*person`),
		regexp.MustCompile(`(?i)seats?[-\s]*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)[-\s]*seat`),
	}

	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\(([^()]+)\)\s*$`),
		regexp.MustCompile(`-\s*([^-]+)$`),
		regexp.MustCompile(`(?i)\broom\s+([A-Za-z0-9.\-]+)`),
		regexp.MustCompile(`(?i)\bbuilding\s+([A-Za-z0-9.\-]+)`),
		regexp.MustCompile(`(?i)\bfloor\s+([A-Za-z0-9.\-]+)`),
		regexp.MustCompile(`(?i)\blevel\s+([A-Za-z0-9.\-]+)`),
		regexp.MustCompile(`(?i)\b([A-Za-z0-9.\-]+)\s+building\b`),
		regexp.MustCompile(`(?i)\b(\d+(?:st|nd|rd|th))\s+floor\b.*`),
	}
)

// Classify maps a raw directory Member to a Resource, or returns ok=false
// when the member cannot be admitted at all (no usable mail). Classification
// never errors — malformed input simply fails to classify.
func Classify(m Member) (Resource, bool) {
	mail := strings.ToLower(strings.TrimSpace(m.Mail))
	if mail == "" {
		return Resource{}, false
	}
	haystack := strings.ToLower(m.DisplayName + " " + mail)

	r := Resource{
		ID:          m.ID,
		Mail:        mail,
		DisplayName: m.DisplayName,
		Kind:        classifyKind(haystack),
	}
	if cap, ok := extractCapacity(m.DisplayName); ok {
		r.Capacity = &cap
	}
	r.Location = extractLocation(m.DisplayName)
	return r, true
}

func classifyKind(haystack string) Kind {
	for _, term := range equipmentTerms {
		if strings.Contains(haystack, term) {
			return KindEquipment
		}
	}
	for _, term := range roomTerms {
		if strings.Contains(haystack, term) {
			return KindRoom
		}
	}
	for _, term := range workspaceTerms {
		if strings.Contains(haystack, term) {
			return KindWorkspace
		}
	}
	return KindGeneric
}

// FallbackKind applies the historical "assume room" default for Generic
// resources when the caller does not allow bare Generic resources.
func FallbackKind(k Kind, allowGeneric bool) Kind {
	if k == KindGeneric && !allowGeneric {
		return KindRoom
	}
	return k
}

// Admissible reports whether kind is allowed into a scope under the given
// policy.
func Admissible(k Kind, allowed map[Kind]bool, allowGeneric bool) bool {
	if allowed[k] {
		return true
	}
	return k == KindGeneric && allowGeneric
}

func extractCapacity(displayName string) (int, bool) {
	for _, re := range capacityPatterns {
		m := re.FindStringSubmatch(displayName)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

func extractLocation(displayName string) string {
	for _, re := range locationPatterns {
		m := re.FindStringSubmatch(displayName)
		if m == nil {
			continue
		}
		loc := strings.TrimSpace(m[1])
		if loc != "" {
			return loc
		}
	}
	return ""
}
