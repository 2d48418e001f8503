package wso2

import (
	"context"
	"fmt"
	"net/http"

	"idgate/pkg/metrics"
)

// SwitchToOrganization exchanges a root token for one scoped to the given
// child organization.
func (c *Client) SwitchToOrganization(ctx context.Context, rootToken AccessToken, orgID string) (AccessToken, error) {
	if c.eps.BaseURL == "" {
		return AccessToken{}, &ConfigError{Field: "IS_URL"}
	}
	if orgID == "" {
		return AccessToken{}, &ValidationError{Field: "organization id", Reason: "empty"}
	}

	endpoint := c.eps.switchURL(orgID)
	resp, err := c.doJSON(ctx, http.MethodPost, endpoint, "Bearer "+rootToken.Value, nil)
	if err != nil {
		metrics.TokenMintFailures.WithLabelValues("org_switch").Inc()
		return AccessToken{}, err
	}
	defer resp.Body.Close()
	if !is2xx(resp.StatusCode) {
		metrics.TokenMintFailures.WithLabelValues("org_switch").Inc()
		return AccessToken{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	tok, err := parseTokenResponse(resp, endpoint)
	if err != nil {
		metrics.TokenMintFailures.WithLabelValues("org_switch").Inc()
		return AccessToken{}, err
	}
	tok.OrganizationID = orgID
	metrics.TokensMinted.WithLabelValues("org_switch").Inc()
	c.log.Debugw("token switched", "org", orgID, "token", tok.Preview())
	return tok, nil
}

// MintOrganizationToken mints a root client-credentials token and exchanges
// it for an organization-scoped one. If the switch fails the root token is
// revoked before returning: a freshly minted credential with no further
// consumer must not be left live on a failure path.
func (c *Client) MintOrganizationToken(ctx context.Context, creds Credentials, orgID string, scopes []string) (AccessToken, error) {
	root, err := c.AcquireClientCredentials(ctx, creds, scopes)
	if err != nil {
		return AccessToken{}, fmt.Errorf("mint root token: %w", err)
	}
	scoped, err := c.SwitchToOrganization(ctx, root, orgID)
	if err != nil {
		c.Revoke(ctx, creds, root.Value)
		return AccessToken{}, fmt.Errorf("switch to organization %s: %w", orgID, err)
	}
	return scoped, nil
}
