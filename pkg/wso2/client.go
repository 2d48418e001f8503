// Package wso2 is an HTTP client for the WSO2 Identity Server surfaces this
// project depends on: the OAuth2 token/introspect/revoke endpoints, the
// organization API and the SCIM2 Bulk/Users endpoints. Credentials are passed
// into every call explicitly; the client itself holds only endpoints and
// transport plumbing.
package wso2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Endpoints groups the IdP URLs this client talks to. BaseURL is the IS root;
// the oauth2 introspect/revoke paths are derived from it when the explicit
// fields are empty.
type Endpoints struct {
	BaseURL   string
	TokenURL  string
	RevokeURL string
	BulkURL   string
	UserURL   string
}

func (e Endpoints) introspectURL() string {
	return strings.TrimRight(e.BaseURL, "/") + "/oauth2/introspect"
}

func (e Endpoints) revokeURL() string {
	if e.RevokeURL != "" {
		return e.RevokeURL
	}
	return strings.TrimRight(e.BaseURL, "/") + "/oauth2/revoke"
}

func (e Endpoints) orgURL(orgID string) string {
	return strings.TrimRight(e.BaseURL, "/") + "/api/server/v1/organizations/" + orgID
}

func (e Endpoints) orgListURL() string {
	return strings.TrimRight(e.BaseURL, "/") + "/api/server/v1/organizations"
}

func (e Endpoints) switchURL(orgID string) string {
	return strings.TrimRight(e.BaseURL, "/") + "/api/users/v1/me/organizations/" + orgID + "/switch"
}

// Credentials carries the OAuth2 client pair and the SCIM admin basic-auth
// pair. It is threaded through every call rather than stored on the client so
// nothing token-related is ambient state.
type Credentials struct {
	ClientID      string
	ClientSecret  string
	AdminUsername string
	AdminPassword string
}

func (c Credentials) clientBasic() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.ClientID+":"+c.ClientSecret))
}

func (c Credentials) adminBasic() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.AdminUsername+":"+c.AdminPassword))
}

// Client is safe for concurrent use.
type Client struct {
	eps        Endpoints
	httpc      *http.Client
	introspect *http.Client // short timeout so liveness checks fail fast
	log        *zap.SugaredLogger
	scopes     *ScopeCache
}

type Option func(*Client)

// WithHTTPClient replaces the default transport (used by tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h; c.introspect = h }
}

// WithIntrospectTimeout bounds introspection calls only; all other calls
// inherit the default client timeout.
func WithIntrospectTimeout(d time.Duration) Option {
	return func(c *Client) { c.introspect = &http.Client{Timeout: d} }
}

// WithScopeCache enables the cached authorized-scopes fallback.
func WithScopeCache(sc *ScopeCache) Option {
	return func(c *Client) { c.scopes = sc }
}

func NewClient(eps Endpoints, log *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		eps:        eps,
		httpc:      &http.Client{Timeout: 30 * time.Second},
		introspect: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// tokenPreview truncates a token value for log fields. Full token values must
// never reach a log line.
func tokenPreview(v string) string {
	if len(v) <= 8 {
		return "…"
	}
	return v[:8] + "…"
}

func (c *Client) postForm(ctx context.Context, httpc *http.Client, endpoint, auth string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", auth)
	return httpc.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, auth string, body any) (*http.Response, error) {
	return c.do(ctx, method, endpoint, auth, "application/json", body)
}

// doSCIM is doJSON with the media type the SCIM2 endpoints expect.
func (c *Client) doSCIM(ctx context.Context, method, endpoint, auth string, body any) (*http.Response, error) {
	return c.do(ctx, method, endpoint, auth, "application/scim+json", body)
}

func (c *Client) do(ctx context.Context, method, endpoint, auth, contentType string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", auth)
	return c.httpc.Do(req)
}

// readBody drains up to 1MiB of a response body for diagnostics.
func readBody(r *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	return string(b)
}

func is2xx(status int) bool { return status >= 200 && status < 300 }
