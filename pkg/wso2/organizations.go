package wso2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Well-known organization attribute keys. The IdP stores attributes as a flat
// key/value list; these are the keys this project reads and writes.
const (
	AttrInvitationTokenRef = "invitation_token_reference"
	AttrInvitationExpires  = "invitation_expires"
	AttrLeadStatus         = "lead_status"
	AttrCustomerStatus     = "customer_status"
	AttrContactEmail       = "contact_email"
)

// OrgAttributes is the typed view over the IdP's free-form attribute list.
// Unknown keys are preserved in Extra so a patch round-trip never drops them.
type OrgAttributes struct {
	InvitationTokenRef string
	InvitationExpires  time.Time
	LeadStatus         string
	CustomerStatus     string
	ContactEmail       string
	Extra              map[string]string
}

type Organization struct {
	ID         string
	Name       string
	Status     string
	Attributes OrgAttributes
	Raw        map[string]any // decoded response body, used by summary mappings
}

type orgAttr struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type orgWire struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Attributes []orgAttr `json:"attributes"`
}

func parseAttributes(list []orgAttr) (OrgAttributes, error) {
	out := OrgAttributes{}
	for _, a := range list {
		switch a.Key {
		case AttrInvitationTokenRef:
			out.InvitationTokenRef = a.Value
		case AttrInvitationExpires:
			t, err := time.Parse(time.RFC3339, a.Value)
			if err != nil {
				return out, &ValidationError{Field: AttrInvitationExpires, Reason: "not RFC3339: " + a.Value}
			}
			out.InvitationExpires = t
		case AttrLeadStatus:
			out.LeadStatus = a.Value
		case AttrCustomerStatus:
			out.CustomerStatus = a.Value
		case AttrContactEmail:
			out.ContactEmail = a.Value
		default:
			if out.Extra == nil {
				out.Extra = map[string]string{}
			}
			out.Extra[a.Key] = a.Value
		}
	}
	return out, nil
}

func (a OrgAttributes) list() []orgAttr {
	var out []orgAttr
	if a.InvitationTokenRef != "" {
		out = append(out, orgAttr{AttrInvitationTokenRef, a.InvitationTokenRef})
	}
	if !a.InvitationExpires.IsZero() {
		out = append(out, orgAttr{AttrInvitationExpires, a.InvitationExpires.UTC().Format(time.RFC3339)})
	}
	if a.LeadStatus != "" {
		out = append(out, orgAttr{AttrLeadStatus, a.LeadStatus})
	}
	if a.CustomerStatus != "" {
		out = append(out, orgAttr{AttrCustomerStatus, a.CustomerStatus})
	}
	if a.ContactEmail != "" {
		out = append(out, orgAttr{AttrContactEmail, a.ContactEmail})
	}
	for k, v := range a.Extra {
		out = append(out, orgAttr{k, v})
	}
	return out
}

// OrgPatchOp is one operation of an organization PATCH. The IdP applies these
// last-write-wins; there is no version or ETag check on this API.
type OrgPatchOp struct {
	Operation string `json:"operation"`
	Path      string `json:"path"`
	Value     string `json:"value,omitempty"`
}

func RenameOp(name string) OrgPatchOp {
	return OrgPatchOp{Operation: "REPLACE", Path: "/name", Value: name}
}

func AttributeOp(key, value string) OrgPatchOp {
	return OrgPatchOp{Operation: "REPLACE", Path: "/attributes/" + key, Value: value}
}

func AttributeRemoveOp(key string) OrgPatchOp {
	return OrgPatchOp{Operation: "REMOVE", Path: "/attributes/" + key}
}

// GetOrganization reads one organization with its attribute map.
func (c *Client) GetOrganization(ctx context.Context, bearer, orgID string) (Organization, error) {
	if c.eps.BaseURL == "" {
		return Organization{}, &ConfigError{Field: "IS_URL"}
	}
	if orgID == "" {
		return Organization{}, &ValidationError{Field: "organization id", Reason: "empty"}
	}
	endpoint := c.eps.orgURL(orgID)
	resp, err := c.doJSON(ctx, http.MethodGet, endpoint, "Bearer "+bearer, nil)
	if err != nil {
		return Organization{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return Organization{}, &ForbiddenError{Endpoint: endpoint}
	}
	if !is2xx(resp.StatusCode) {
		return Organization{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	body := readBody(resp)
	var wire orgWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return Organization{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: "malformed organization response"}
	}
	if wire.ID == "" {
		return Organization{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: "organization response lacks id"}
	}
	attrs, err := parseAttributes(wire.Attributes)
	if err != nil {
		return Organization{}, err
	}
	var raw map[string]any
	_ = json.Unmarshal([]byte(body), &raw)
	return Organization{ID: wire.ID, Name: wire.Name, Status: wire.Status, Attributes: attrs, Raw: raw}, nil
}

// PatchOrganization applies the given operations. Last-write-wins; two
// concurrent patches to the same organization can lose updates.
func (c *Client) PatchOrganization(ctx context.Context, bearer, orgID string, ops []OrgPatchOp) error {
	if len(ops) == 0 {
		return nil
	}
	endpoint := c.eps.orgURL(orgID)
	resp, err := c.doJSON(ctx, http.MethodPatch, endpoint, "Bearer "+bearer, ops)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return &ForbiddenError{Endpoint: endpoint}
	}
	if !is2xx(resp.StatusCode) {
		return &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	return nil
}

// CreateOrganization creates a child organization with the given attributes.
func (c *Client) CreateOrganization(ctx context.Context, bearer, name string, attrs OrgAttributes) (Organization, error) {
	if c.eps.BaseURL == "" {
		return Organization{}, &ConfigError{Field: "IS_URL"}
	}
	if name == "" {
		return Organization{}, &ValidationError{Field: "name", Reason: "empty"}
	}
	endpoint := c.eps.orgListURL()
	payload := map[string]any{"name": name, "attributes": attrs.list()}
	resp, err := c.doJSON(ctx, http.MethodPost, endpoint, "Bearer "+bearer, payload)
	if err != nil {
		return Organization{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return Organization{}, &ForbiddenError{Endpoint: endpoint}
	}
	if !is2xx(resp.StatusCode) {
		return Organization{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	var wire orgWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil || wire.ID == "" {
		return Organization{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: "malformed organization response"}
	}
	a, err := parseAttributes(wire.Attributes)
	if err != nil {
		return Organization{}, err
	}
	return Organization{ID: wire.ID, Name: wire.Name, Status: wire.Status, Attributes: a}, nil
}

// OrgRef is the list-endpoint projection; detail fetches go through
// GetOrganization one by one.
type OrgRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ListOrganizations returns organization references, optionally filtered with
// the IdP's filter syntax (e.g. `name sw lead-`).
func (c *Client) ListOrganizations(ctx context.Context, bearer, filter string) ([]OrgRef, error) {
	if c.eps.BaseURL == "" {
		return nil, &ConfigError{Field: "IS_URL"}
	}
	endpoint := c.eps.orgListURL()
	if filter != "" {
		endpoint += "?filter=" + url.QueryEscape(filter)
	}
	resp, err := c.doJSON(ctx, http.MethodGet, endpoint, "Bearer "+bearer, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return nil, &ForbiddenError{Endpoint: endpoint}
	}
	if !is2xx(resp.StatusCode) {
		return nil, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	var out struct {
		Organizations []OrgRef `json:"organizations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: "malformed organization list"}
	}
	return out.Organizations, nil
}
