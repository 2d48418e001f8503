package wso2

import (
	"context"
	"encoding/json"
	"net/url"

	"idgate/pkg/metrics"
)

// Introspection is the IdP's view of a token's liveness. Claims carries the
// raw decoded body for callers that need more than the named fields.
type Introspection struct {
	Active   bool
	Scope    string
	Sub      string
	ClientID string
	Exp      int64
	Claims   map[string]any
}

// Introspect reports whether a token is live. Fail-closed: a non-2xx
// response, a body without `active`, or a malformed body all yield
// Active=false. Transport or configuration failures additionally return the
// error so callers can distinguish "revoked" from "unknown" — but either way
// the token must be treated as dead.
func (c *Client) Introspect(ctx context.Context, creds Credentials, token string) (Introspection, error) {
	if c.eps.BaseURL == "" {
		return Introspection{}, &ConfigError{Field: "IS_URL"}
	}
	if token == "" {
		return Introspection{}, &ValidationError{Field: "token", Reason: "empty"}
	}

	form := url.Values{}
	form.Set("token", token)
	resp, err := c.postForm(ctx, c.introspect, c.eps.introspectURL(), creds.clientBasic(), form)
	if err != nil {
		metrics.Introspections.WithLabelValues("error").Inc()
		return Introspection{}, err
	}
	defer resp.Body.Close()
	if !is2xx(resp.StatusCode) {
		metrics.Introspections.WithLabelValues("inactive").Inc()
		c.log.Warnw("introspection rejected", "status", resp.StatusCode, "token", tokenPreview(token))
		return Introspection{Active: false}, nil
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		metrics.Introspections.WithLabelValues("inactive").Inc()
		return Introspection{Active: false}, nil
	}
	out := Introspection{Claims: claims}
	if v, ok := claims["active"].(bool); ok {
		out.Active = v
	}
	if v, ok := claims["scope"].(string); ok {
		out.Scope = v
	}
	if v, ok := claims["sub"].(string); ok {
		out.Sub = v
	}
	if v, ok := claims["client_id"].(string); ok {
		out.ClientID = v
	}
	if v, ok := claims["exp"].(float64); ok {
		out.Exp = int64(v)
	}
	if out.Active {
		metrics.Introspections.WithLabelValues("active").Inc()
	} else {
		metrics.Introspections.WithLabelValues("inactive").Inc()
	}
	return out, nil
}

// Revoke invalidates a token. Best-effort: failures are logged and reported
// as false, never raised as fatal, because a revoke that did not land only
// means the token dies at its natural expiry instead.
func (c *Client) Revoke(ctx context.Context, creds Credentials, token string) bool {
	if c.eps.revokeURL() == "" || token == "" {
		return false
	}
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")
	resp, err := c.postForm(ctx, c.httpc, c.eps.revokeURL(), creds.clientBasic(), form)
	if err != nil {
		metrics.Revocations.WithLabelValues("error").Inc()
		c.log.Warnw("revoke failed", "err", err, "token", tokenPreview(token))
		return false
	}
	defer resp.Body.Close()
	if !is2xx(resp.StatusCode) {
		metrics.Revocations.WithLabelValues("rejected").Inc()
		c.log.Warnw("revoke rejected", "status", resp.StatusCode, "token", tokenPreview(token))
		return false
	}
	metrics.Revocations.WithLabelValues("ok").Inc()
	return true
}
