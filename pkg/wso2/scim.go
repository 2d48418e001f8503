package wso2

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"idgate/pkg/metrics"
)

const (
	schemaBulkRequest = "urn:ietf:params:scim:api:messages:2.0:BulkRequest"
	schemaPatchOp     = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	schemaUser        = "urn:ietf:params:scim:schemas:core:2.0:User"

	// UserBulkID is the cross-reference id the user-creation operation
	// carries inside a bulk request, so role patches can point at the user
	// before its real id exists.
	UserBulkID = "user1"
)

// User is the subset of the SCIM user resource this project provisions.
type User struct {
	UserName   string
	Password   string
	GivenName  string
	FamilyName string
	Email      string
}

func (u User) scim() map[string]any {
	payload := map[string]any{
		"schemas":  []string{schemaUser},
		"userName": u.UserName,
	}
	if u.Password != "" {
		payload["password"] = u.Password
	}
	name := map[string]any{}
	if u.GivenName != "" {
		name["givenName"] = u.GivenName
	}
	if u.FamilyName != "" {
		name["familyName"] = u.FamilyName
	}
	if len(name) > 0 {
		payload["name"] = name
	}
	if u.Email != "" {
		payload["emails"] = []map[string]any{{"primary": true, "value": u.Email}}
	}
	return payload
}

// BulkOperation is one entry of a SCIM2 bulk envelope.
type BulkOperation struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	BulkID string `json:"bulkId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type bulkEnvelope struct {
	Schemas      []string        `json:"schemas"`
	FailOnErrors int             `json:"failOnErrors"`
	Operations   []BulkOperation `json:"Operations"`
}

// BulkOpResult mirrors one operation outcome; Status is the string status
// code the SCIM spec uses ("201", "200", ...).
type BulkOpResult struct {
	Method   string `json:"method"`
	BulkID   string `json:"bulkId,omitempty"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status"`
}

type BulkResult struct {
	Operations []BulkOpResult
}

// NewUserWithRoles builds the canonical provisioning request: one POST /Users
// first, then one PATCH /Roles/{id} per role adding the new user via its
// bulkId. The creation op must stay first so the cross-reference resolves.
func NewUserWithRoles(u User, roleIDs []string) []BulkOperation {
	ops := []BulkOperation{{
		Method: http.MethodPost,
		Path:   "/Users",
		BulkID: UserBulkID,
		Data:   u.scim(),
	}}
	for _, id := range roleIDs {
		ops = append(ops, roleMemberAdd(id, "bulkId:"+UserBulkID))
	}
	return ops
}

func roleMemberAdd(roleID, memberRef string) BulkOperation {
	return BulkOperation{
		Method: http.MethodPatch,
		Path:   "/Roles/" + roleID,
		Data: map[string]any{
			"schemas": []string{schemaPatchOp},
			"Operations": []map[string]any{{
				"op":    "add",
				"path":  "members",
				"value": []map[string]any{{"value": memberRef}},
			}},
		},
	}
}

func roleMemberRemove(roleID, userID string) BulkOperation {
	return BulkOperation{
		Method: http.MethodPatch,
		Path:   "/Roles/" + roleID,
		Data: map[string]any{
			"schemas": []string{schemaPatchOp},
			"Operations": []map[string]any{{
				"op":   "remove",
				"path": `members[value eq "` + userID + `"]`,
			}},
		},
	}
}

// RoleMembershipOps turns a role delta into bulk patch operations, one per
// changed role, leaving unrelated memberships alone.
func RoleMembershipOps(userID string, added, removed []string) []BulkOperation {
	var ops []BulkOperation
	for _, id := range added {
		ops = append(ops, roleMemberAdd(id, userID))
	}
	for _, id := range removed {
		ops = append(ops, roleMemberRemove(id, userID))
	}
	return ops
}

// RoleDelta computes desired−current and current−desired, both sorted. A set
// difference rather than a full replace, so memberships granted elsewhere are
// not clobbered.
func RoleDelta(current, desired []string) (added, removed []string) {
	cur := map[string]struct{}{}
	for _, id := range current {
		cur[id] = struct{}{}
	}
	des := map[string]struct{}{}
	for _, id := range desired {
		des[id] = struct{}{}
	}
	for id := range des {
		if _, ok := cur[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range cur {
		if _, ok := des[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// BulkSubmit posts the operations as one atomic SCIM2 bulk request. A user
// creation op, when present, must be the first operation.
func (c *Client) BulkSubmit(ctx context.Context, creds Credentials, ops []BulkOperation) (BulkResult, error) {
	switch {
	case c.eps.BulkURL == "":
		return BulkResult{}, &ConfigError{Field: "BULK_URL"}
	case creds.AdminUsername == "" || creds.AdminPassword == "":
		return BulkResult{}, &ConfigError{Field: "WSO2_ADMIN_USERNAME/WSO2_ADMIN_PASSWORD"}
	case len(ops) == 0:
		return BulkResult{}, &ValidationError{Field: "operations", Reason: "empty"}
	}
	for i, op := range ops {
		if i > 0 && op.Method == http.MethodPost && strings.HasPrefix(op.Path, "/Users") {
			return BulkResult{}, &ValidationError{Field: "operations", Reason: "user creation must be the first operation"}
		}
	}

	env := bulkEnvelope{
		Schemas:      []string{schemaBulkRequest},
		FailOnErrors: 1,
		Operations:   ops,
	}
	resp, err := c.doSCIM(ctx, http.MethodPost, c.eps.BulkURL, creds.adminBasic(), env)
	if err != nil {
		metrics.ScimBulk.WithLabelValues("error").Inc()
		return BulkResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		metrics.ScimBulk.WithLabelValues("forbidden").Inc()
		return BulkResult{}, &ForbiddenError{Endpoint: c.eps.BulkURL}
	}
	if !is2xx(resp.StatusCode) {
		metrics.ScimBulk.WithLabelValues("rejected").Inc()
		return BulkResult{}, &UpstreamError{Endpoint: c.eps.BulkURL, Status: resp.StatusCode, Body: readBody(resp)}
	}
	var out struct {
		Operations []BulkOpResult `json:"Operations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ScimBulk.WithLabelValues("rejected").Inc()
		return BulkResult{}, &UpstreamError{Endpoint: c.eps.BulkURL, Status: resp.StatusCode, Body: "malformed bulk response"}
	}
	metrics.ScimBulk.WithLabelValues("ok").Inc()
	return BulkResult{Operations: out.Operations}, nil
}

// PatchOperation is one SCIM PATCH op against a user resource.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// UserPatch names the profile fields an admin form can change. Empty fields
// are skipped.
type UserPatch struct {
	GivenName  string
	FamilyName string
	Email      string
}

// BuildUserPatchOperations emits replace ops in a fixed relative order:
// name.givenName, name.familyName, emails.
func BuildUserPatchOperations(p UserPatch) []PatchOperation {
	var ops []PatchOperation
	if p.GivenName != "" {
		ops = append(ops, PatchOperation{Op: "replace", Path: "name.givenName", Value: p.GivenName})
	}
	if p.FamilyName != "" {
		ops = append(ops, PatchOperation{Op: "replace", Path: "name.familyName", Value: p.FamilyName})
	}
	if p.Email != "" {
		ops = append(ops, PatchOperation{Op: "replace", Path: "emails", Value: []map[string]any{{"primary": true, "value": p.Email}}})
	}
	return ops
}

// ScimUser is the fetched projection used for role-delta computation.
type ScimUser struct {
	ID       string
	UserName string
	RoleIDs  []string
}

func validUserID(id string) error {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return &ValidationError{Field: "user id", Reason: "malformed"}
	}
	return nil
}

// GetUser fetches a user with its current role memberships.
func (c *Client) GetUser(ctx context.Context, creds Credentials, userID string) (ScimUser, error) {
	if c.eps.UserURL == "" {
		return ScimUser{}, &ConfigError{Field: "USER_URL"}
	}
	if err := validUserID(userID); err != nil {
		return ScimUser{}, err
	}
	endpoint := strings.TrimRight(c.eps.UserURL, "/") + "/" + userID
	resp, err := c.doSCIM(ctx, http.MethodGet, endpoint, creds.adminBasic(), nil)
	if err != nil {
		return ScimUser{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return ScimUser{}, &ForbiddenError{Endpoint: endpoint}
	}
	if !is2xx(resp.StatusCode) {
		return ScimUser{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	var wire struct {
		ID       string `json:"id"`
		UserName string `json:"userName"`
		Roles    []struct {
			Value string `json:"value"`
		} `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil || wire.ID == "" {
		return ScimUser{}, &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: "malformed user response"}
	}
	u := ScimUser{ID: wire.ID, UserName: wire.UserName}
	for _, r := range wire.Roles {
		u.RoleIDs = append(u.RoleIDs, r.Value)
	}
	return u, nil
}

// PatchUser applies profile patch operations to a single user.
func (c *Client) PatchUser(ctx context.Context, creds Credentials, userID string, ops []PatchOperation) error {
	if c.eps.UserURL == "" {
		return &ConfigError{Field: "USER_URL"}
	}
	if err := validUserID(userID); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	endpoint := strings.TrimRight(c.eps.UserURL, "/") + "/" + userID
	payload := map[string]any{"schemas": []string{schemaPatchOp}, "Operations": ops}
	resp, err := c.doSCIM(ctx, http.MethodPatch, endpoint, creds.adminBasic(), payload)
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

// DeleteUser deprovisions a user.
func (c *Client) DeleteUser(ctx context.Context, creds Credentials, userID string) error {
	if c.eps.UserURL == "" {
		return &ConfigError{Field: "USER_URL"}
	}
	if err := validUserID(userID); err != nil {
		return err
	}
	endpoint := strings.TrimRight(c.eps.UserURL, "/") + "/" + userID
	resp, err := c.doSCIM(ctx, http.MethodDelete, endpoint, creds.adminBasic(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return &ForbiddenError{Endpoint: endpoint}
	}
	if !is2xx(resp.StatusCode) && resp.StatusCode != http.StatusNotFound {
		return &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	return nil
}
