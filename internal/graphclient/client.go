// Package graphclient wraps the upstream directory/calendar API used to
// enumerate group membership and the places catalogue during scope
// materialization (C2). Credential acquisition itself is an external
// collaborator — Client is handed a CredentialProvider and never sees
// raw app-credential secrets beyond what the provider returns per call.
package graphclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"graphscopeproxy/internal/resource"
)

// CredentialProvider returns a bearer token suitable for calling upstream.
// Implementations are expected to cache and refresh internally; Client
// treats it as an opaque source of bearer strings.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// Place is a single entry from the upstream places catalogue, used only to
// supplement already-admitted Resources (never to add new ones).
type Place struct {
	ID          string
	Mail        string
	DisplayName string
	Capacity    *int
	Location    string
}

// Directory is the subset of upstream behavior the Scope Builder needs.
// Real implementations page against Microsoft Graph; tests substitute a
// fake.
type Directory interface {
	// ListGroupMembers enumerates a group's membership, invoking fn once
	// per non-empty page until upstream signals end of stream. fn
	// returning an error aborts enumeration.
	ListGroupMembers(ctx context.Context, groupID string, pageSize int, fn func([]resource.Member) error) error

	// ListPlaces fetches the upstream places catalogue, in full, for
	// Scope Builder supplementation.
	ListPlaces(ctx context.Context) ([]Place, error)
}

// ErrUpstreamUnavailable wraps any failure enumerating group membership or
// the places catalogue so callers can classify it uniformly.
type ErrUpstreamUnavailable struct {
	Op  string
	Err error
}

func (e *ErrUpstreamUnavailable) Error() string {
	return fmt.Sprintf("graphclient: upstream unavailable during %s: %v", e.Op, e.Err)
}

func (e *ErrUpstreamUnavailable) Unwrap() error { return e.Err }

// Client is the HTTP-backed Directory implementation against Microsoft
// Graph-shaped endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string // e.g. https://graph.microsoft.com/v1.0
	creds      CredentialProvider
}

// New constructs a Client. httpClient may be nil to use a sane default.
func New(baseURL string, creds CredentialProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
	}
}

// Probe performs a cheap upstream reachability check (a bare HEAD against
// the configured base URL) for the deep health check.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

type memberPage struct {
	Value    []graphMember `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

type graphMember struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

func (m graphMember) mail() string {
	if m.Mail != "" {
		return m.Mail
	}
	return m.UserPrincipalName
}

// ListGroupMembers implements Directory.
func (c *Client) ListGroupMembers(ctx context.Context, groupID string, pageSize int, fn func([]resource.Member) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	next := fmt.Sprintf("%s/groups/%s/members?$top=%d", c.baseURL, url.PathEscape(groupID), pageSize)
	for next != "" {
		var page memberPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return &ErrUpstreamUnavailable{Op: "ListGroupMembers", Err: err}
		}
		members := make([]resource.Member, 0, len(page.Value))
		for _, gm := range page.Value {
			members = append(members, resource.Member{
				ID:          gm.ID,
				Mail:        gm.mail(),
				DisplayName: gm.DisplayName,
			})
		}
		if len(members) > 0 {
			if err := fn(members); err != nil {
				return err
			}
		}
		next = page.NextLink
	}
	return nil
}

type placesPage struct {
	Value []graphPlace `json:"value"`
}

type graphPlace struct {
	ID          string `json:"id"`
	Mail        string `json:"emailAddress"`
	DisplayName string `json:"displayName"`
	Capacity    *int   `json:"capacity"`
	Building    string `json:"building"`
	FloorLabel  string `json:"floorLabel"`
}

// ListPlaces implements Directory.
func (c *Client) ListPlaces(ctx context.Context) ([]Place, error) {
	var page placesPage
	if err := c.getJSON(ctx, c.baseURL+"/places/microsoft.graph.room", &page); err != nil {
		return nil, &ErrUpstreamUnavailable{Op: "ListPlaces", Err: err}
	}
	out := make([]Place, 0, len(page.Value))
	for _, p := range page.Value {
		loc := p.Building
		if loc == "" {
			loc = p.FloorLabel
		}
		out = append(out, Place{
			ID:          p.ID,
			Mail:        p.Mail,
			DisplayName: p.DisplayName,
			Capacity:    p.Capacity,
			Location:    loc,
		})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire upstream credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
