package wso2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idgate/pkg/metrics"
)

// AccessToken is a transient copy of what the IdP issued. Expiry is whatever
// the IdP reported; nothing here enforces it locally.
type AccessToken struct {
	Value          string
	TokenType      string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Scopes         []string
	OrganizationID string // set only on organization-scoped tokens
}

// Preview is the only representation of a token allowed in logs.
func (t AccessToken) Preview() string { return tokenPreview(t.Value) }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// AcquireClientCredentials obtains a token via grant_type=client_credentials.
// Single attempt, no retry; callers decide whether to fall back to cached
// state (see AuthorizedScopes).
func (c *Client) AcquireClientCredentials(ctx context.Context, creds Credentials, scopes []string) (AccessToken, error) {
	switch {
	case c.eps.TokenURL == "":
		return AccessToken{}, &ConfigError{Field: "IS_TOKEN_URL"}
	case creds.ClientID == "":
		return AccessToken{}, &ConfigError{Field: "IS_CLIENT_ID"}
	case creds.ClientSecret == "":
		return AccessToken{}, &ConfigError{Field: "IS_CLIENT_SECRET"}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	resp, err := c.postForm(ctx, c.httpc, c.eps.TokenURL, creds.clientBasic(), form)
	if err != nil {
		metrics.TokenMintFailures.WithLabelValues("client_credentials").Inc()
		return AccessToken{}, err
	}
	defer resp.Body.Close()
	if !is2xx(resp.StatusCode) {
		metrics.TokenMintFailures.WithLabelValues("client_credentials").Inc()
		return AccessToken{}, &UpstreamError{Endpoint: c.eps.TokenURL, Status: resp.StatusCode, Body: readBody(resp)}
	}
	tok, err := parseTokenResponse(resp, c.eps.TokenURL)
	if err != nil {
		metrics.TokenMintFailures.WithLabelValues("client_credentials").Inc()
		return AccessToken{}, err
	}
	metrics.TokensMinted.WithLabelValues("client_credentials").Inc()
	c.log.Debugw("token minted", "grant", "client_credentials", "token", tok.Preview(), "scopes", tok.Scopes)
	return tok, nil
}

// AuthorizedScopes returns the scope set the IdP actually granted for the
// requested list. On upstream failure it falls back to the last granted set
// cached within the past 24 hours; the mint itself is never retried.
func (c *Client) AuthorizedScopes(ctx context.Context, creds Credentials, requested []string) ([]string, error) {
	tok, err := c.AcquireClientCredentials(ctx, creds, requested)
	if err == nil {
		if c.scopes != nil {
			c.scopes.Put(ctx, creds.ClientID, tok.Scopes)
		}
		return tok.Scopes, nil
	}
	if c.scopes != nil {
		if cached, ok := c.scopes.Get(ctx, creds.ClientID); ok {
			c.log.Warnw("scope fetch failed, using cached authorized scopes", "err", err)
			return cached, nil
		}
	}
	return nil, err
}

func parseTokenResponse(resp *http.Response, endpoint string) (AccessToken, error) {
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return AccessToken{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: "malformed token response"}
	}
	if tr.AccessToken == "" {
		return AccessToken{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: "response lacks access_token"}
	}
	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600 // IS default when the endpoint omits expires_in
	}
	now := time.Now()
	return AccessToken{
		Value:     tr.AccessToken,
		TokenType: tr.TokenType,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(expiresIn) * time.Second),
		Scopes:    strings.Fields(tr.Scope),
	}, nil
}
