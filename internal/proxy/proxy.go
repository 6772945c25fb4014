// Package proxy implements the Upstream Proxy (C6): forwarding a decided
// request to Microsoft Graph with app credentials swapped in, and
// returning the upstream response (or a typed timeout/transport error) for
// the Response Filter (C7) to process.
package proxy

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"graphscopeproxy/internal/apierr"
)

// CredentialProvider returns a bearer token for calling upstream. Shared
// with internal/graphclient's contract.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// strippedRequestHeaders are stripped from the forwarded request; they
// describe the client-proxy hop (or, for Authorization, the client's own
// credential), not the proxy-upstream one.
var strippedRequestHeaders = map[string]bool{
	"Host":                true,
	"Authorization":       true,
	"Content-Length":      true,
	"Transfer-Encoding":   true,
	"Connection":          true,
	"Te":                  true,
	"Trailer":             true,
	"Upgrade":             true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
}

var strippedResponseHeaders = map[string]bool{
	"Content-Length":    true,
	"Content-Type":      true,
	"Transfer-Encoding": true,
	"Connection":        true,
}

// Proxy forwards requests to an upstream Microsoft Graph-shaped base URL.
type Proxy struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialProvider
	timeout    time.Duration
}

// New constructs a Proxy. httpClient may be nil to use a sane default.
func New(baseURL string, creds CredentialProvider, httpClient *http.Client, timeout time.Duration) *Proxy {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Proxy{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		timeout:    timeout,
	}
}

// Result is the upstream response handed back to the caller for C7 to
// possibly filter before serving to the client.
type Result struct {
	StatusCode    int
	Header        http.Header
	Body          []byte
	CorrelationID string
}

// Forward builds the upstream URL from version+path+rawQuery, forwards
// method/headers/body with app credentials, and returns the upstream
// response. It never errors for an upstream non-2xx status — only for
// deadline exceeded (UpstreamTimeout); transport, credential or body-read
// failure (UpstreamUnavailable); or a request that cannot be built
// (InternalError).
func (p *Proxy) Forward(ctx context.Context, version, path, rawQuery, method string, header http.Header, body io.Reader) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := p.baseURL + "/" + strings.Trim(version, "/") + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.CodeInternalError, "build upstream request", err)
	}

	for k, vv := range header {
		if strippedRequestHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	token, err := p.creds.Token(ctx)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.CodeUpstreamUnavailable, "acquire upstream credential", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	correlationID := header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set("X-Correlation-ID", correlationID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, apierr.Wrap(apierr.CodeUpstreamTimeout, "upstream call timed out", err)
		}
		return Result{}, apierr.Wrap(apierr.CodeUpstreamUnavailable, "upstream transport failure", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.CodeUpstreamUnavailable, "read upstream body", err)
	}

	respHeader := make(http.Header, len(resp.Header))
	for k, vv := range resp.Header {
		if strippedResponseHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		respHeader[k] = vv
	}

	return Result{
		StatusCode:    resp.StatusCode,
		Header:        respHeader,
		Body:          data,
		CorrelationID: correlationID,
	}, nil
}
