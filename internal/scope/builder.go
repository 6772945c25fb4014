package scope

import (
	"context"
	"fmt"
	"time"

	"graphscopeproxy/internal/graphclient"
	"graphscopeproxy/internal/ids"
	"graphscopeproxy/internal/obs"
	"graphscopeproxy/internal/resource"
)

const defaultPageSize = 100

// Policy carries the subset of configuration the Builder needs to classify
// and admit resources.
type Policy struct {
	AllowedPlaceTypes     map[resource.Kind]bool
	AllowGenericResources bool
	MaxScopeSize          int
	UsePlacesAPI          bool
	TTL                   time.Duration
}

// Builder enumerates upstream group membership, classifies members, and
// assembles a Scope (C2).
type Builder struct {
	directory graphclient.Directory
	policy    Policy
	now       func() time.Time
}

// NewBuilder constructs a Builder against the given directory client.
func NewBuilder(directory graphclient.Directory, policy Policy) *Builder {
	if policy.MaxScopeSize <= 0 {
		policy.MaxScopeSize = 500
	}
	if policy.TTL <= 0 {
		policy.TTL = 15 * time.Minute
	}
	return &Builder{directory: directory, policy: policy, now: time.Now}
}

// Build materializes a Scope for groupID from upstream group membership.
func (b *Builder) Build(ctx context.Context, groupID string) (Scope, error) {
	start := time.Now()
	defer func() { obs.ScopeBuildDuration.Observe(time.Since(start).Seconds()) }()

	var (
		resources []resource.Resource
		seen      = make(map[string]struct{})
		truncated bool
	)

	err := b.directory.ListGroupMembers(ctx, groupID, defaultPageSize, func(members []resource.Member) error {
		for _, m := range members {
			r, ok := resource.Classify(m)
			if !ok {
				continue // malformed/unmailed member is skipped, never fails the build
			}
			r.Kind = resource.FallbackKind(r.Kind, b.policy.AllowGenericResources)
			if !resource.Admissible(r.Kind, b.policy.AllowedPlaceTypes, b.policy.AllowGenericResources) {
				continue
			}
			key := r.Key()
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			if len(resources) >= b.policy.MaxScopeSize {
				truncated = true
				continue // keep draining the page so we don't abort enumeration mid-page
			}
			seen[key] = struct{}{}
			resources = append(resources, r)
		}
		return nil
	})
	if err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if truncated {
		obs.LogRequest(map[string]any{
			"level":    "warn",
			"msg":      "scope truncated at MaxScopeSize",
			"group_id": groupID,
			"max_size": b.policy.MaxScopeSize,
		})
	}

	if b.policy.UsePlacesAPI {
		b.supplement(ctx, groupID, resources)
	}

	now := b.now().UTC()
	return Scope{
		ID:        ids.New(),
		GroupID:   groupID,
		Resources: resources,
		CreatedAt: now,
		ExpiresAt: now.Add(b.policy.TTL),
	}, nil
}

// supplement enriches already-present resources with data from the places
// catalogue. It never adds or removes resources; failures are logged and
// swallowed — the scope built so far remains valid.
func (b *Builder) supplement(ctx context.Context, groupID string, resources []resource.Resource) {
	places, err := b.directory.ListPlaces(ctx)
	if err != nil {
		obs.LogRequest(map[string]any{
			"level":    "warn",
			"msg":      "places supplementation failed, continuing without it",
			"group_id": groupID,
			"error":    err.Error(),
		})
		return
	}
	byKey := make(map[string]graphclient.Place, len(places))
	for _, p := range places {
		if p.Mail != "" {
			byKey[normalizeKey(p.Mail)] = p
		}
		if p.ID != "" {
			byKey[normalizeKey(p.ID)] = p
		}
	}
	for i := range resources {
		r := &resources[i]
		p, ok := byKey[r.Key()]
		if !ok {
			p, ok = byKey[normalizeKey(r.ID)]
		}
		if !ok {
			continue
		}
		if r.DisplayName == "" {
			r.DisplayName = p.DisplayName
		}
		if r.Capacity == nil {
			r.Capacity = p.Capacity
		}
		if r.Location == "" {
			r.Location = p.Location
		}
	}
}
