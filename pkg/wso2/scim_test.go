package wso2

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserWithRoles(t *testing.T) {
	u := User{UserName: "jdoe", Password: "pw", GivenName: "Jane", FamilyName: "Doe", Email: "jdoe@example.com"}
	ops := NewUserWithRoles(u, []string{"role-a", "role-b"})
	require.Len(t, ops, 3)

	// User creation first, carrying the bulkId the role patches reference.
	assert.Equal(t, http.MethodPost, ops[0].Method)
	assert.Equal(t, "/Users", ops[0].Path)
	assert.Equal(t, UserBulkID, ops[0].BulkID)

	data := ops[0].Data.(map[string]any)
	assert.Equal(t, "jdoe", data["userName"])
	assert.Equal(t, "pw", data["password"])
	name := data["name"].(map[string]any)
	assert.Equal(t, "Jane", name["givenName"])
	assert.Equal(t, "Doe", name["familyName"])

	for i, roleID := range []string{"role-a", "role-b"} {
		op := ops[i+1]
		assert.Equal(t, http.MethodPatch, op.Method)
		assert.Equal(t, "/Roles/"+roleID, op.Path)
		assert.Empty(t, op.BulkID)
		patch := op.Data.(map[string]any)
		inner := patch["Operations"].([]map[string]any)
		require.Len(t, inner, 1)
		assert.Equal(t, "add", inner[0]["op"])
		members := inner[0]["value"].([]map[string]any)
		assert.Equal(t, "bulkId:"+UserBulkID, members[0]["value"])
	}
}

func TestBulkSubmit(t *testing.T) {
	var envelope struct {
		Schemas      []string `json:"schemas"`
		FailOnErrors int      `json:"failOnErrors"`
		Operations   []struct {
			Method string `json:"method"`
			Path   string `json:"path"`
			BulkID string `json:"bulkId"`
		} `json:"Operations"`
	}
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scim2/Bulk", r.URL.Path)
		assert.Equal(t, testCreds().adminBasic(), r.Header.Get("Authorization"))
		assert.Equal(t, "application/scim+json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		json.NewEncoder(w).Encode(map[string]any{
			"Operations": []map[string]any{
				{"method": "POST", "bulkId": UserBulkID, "location": "/scim2/Users/u-1", "status": "201"},
				{"method": "PATCH", "status": "200"},
			},
		})
	}))

	ops := NewUserWithRoles(User{UserName: "jdoe"}, []string{"role-a"})
	res, err := c.BulkSubmit(context.Background(), testCreds(), ops)
	require.NoError(t, err)
	require.Len(t, res.Operations, 2)
	assert.Equal(t, "201", res.Operations[0].Status)

	assert.Equal(t, []string{"urn:ietf:params:scim:api:messages:2.0:BulkRequest"}, envelope.Schemas)
	assert.Equal(t, 1, envelope.FailOnErrors)
	require.Len(t, envelope.Operations, 2)
	assert.Equal(t, "POST", envelope.Operations[0].Method)
	assert.Equal(t, UserBulkID, envelope.Operations[0].BulkID)
}

func TestBulkSubmitRejectsMisorderedUserCreate(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	ops := []BulkOperation{
		roleMemberAdd("role-a", "bulkId:"+UserBulkID),
		{Method: http.MethodPost, Path: "/Users", BulkID: UserBulkID, Data: User{UserName: "x"}.scim()},
	}
	_, err := c.BulkSubmit(context.Background(), testCreds(), ops)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestBulkSubmitForbidden(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Operation is not permitted"}`, http.StatusForbidden)
	}))
	_, err := c.BulkSubmit(context.Background(), testCreds(), NewUserWithRoles(User{UserName: "x"}, nil))
	var fbdErr *ForbiddenError
	require.ErrorAs(t, err, &fbdErr)
}

func TestBulkSubmitMissingAdminCredentials(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	_, err := c.BulkSubmit(context.Background(), Credentials{ClientID: "c", ClientSecret: "s"},
		NewUserWithRoles(User{UserName: "x"}, nil))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRoleDelta(t *testing.T) {
	added, removed := RoleDelta([]string{"a", "b", "c"}, []string{"b", "c", "d", "e"})
	assert.Equal(t, []string{"d", "e"}, added)
	assert.Equal(t, []string{"a"}, removed)

	added, removed = RoleDelta([]string{"a"}, []string{"a"})
	assert.Empty(t, added)
	assert.Empty(t, removed)

	added, removed = RoleDelta(nil, []string{"z", "a"})
	assert.Equal(t, []string{"a", "z"}, added)
	assert.Empty(t, removed)
}

func TestRoleMembershipOps(t *testing.T) {
	ops := RoleMembershipOps("u-1", []string{"role-new"}, []string{"role-old"})
	require.Len(t, ops, 2)

	add := ops[0].Data.(map[string]any)["Operations"].([]map[string]any)[0]
	assert.Equal(t, "add", add["op"])
	assert.Equal(t, "members", add["path"])

	rem := ops[1].Data.(map[string]any)["Operations"].([]map[string]any)[0]
	assert.Equal(t, "remove", rem["op"])
	assert.Equal(t, `members[value eq "u-1"]`, rem["path"])
}

func TestBuildUserPatchOperations(t *testing.T) {
	ops := BuildUserPatchOperations(UserPatch{GivenName: "Jane", FamilyName: "Doe", Email: "j@example.com"})
	require.Len(t, ops, 3)
	assert.Equal(t, "name.givenName", ops[0].Path)
	assert.Equal(t, "name.familyName", ops[1].Path)
	assert.Equal(t, "emails", ops[2].Path)
	for _, op := range ops {
		assert.Equal(t, "replace", op.Op)
	}

	ops = BuildUserPatchOperations(UserPatch{FamilyName: "Doe"})
	require.Len(t, ops, 1)
	assert.Equal(t, "name.familyName", ops[0].Path)

	assert.Empty(t, BuildUserPatchOperations(UserPatch{}))
}

func TestGetUser(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scim2/Users/u-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "u-1",
			"userName": "jdoe",
			"roles": []map[string]any{
				{"value": "role-a", "display": "everyone"},
				{"value": "role-b", "display": "billing"},
			},
		})
	}))

	u, err := c.GetUser(context.Background(), testCreds(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "jdoe", u.UserName)
	assert.Equal(t, []string{"role-a", "role-b"}, u.RoleIDs)
}

func TestPatchUser(t *testing.T) {
	var payload struct {
		Schemas    []string         `json:"schemas"`
		Operations []PatchOperation `json:"Operations"`
	}
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/scim2/Users/u-1", r.URL.Path)
		assert.Equal(t, "application/scim+json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))

	ops := BuildUserPatchOperations(UserPatch{GivenName: "Jane"})
	require.NoError(t, c.PatchUser(context.Background(), testCreds(), "u-1", ops))
	assert.Equal(t, []string{"urn:ietf:params:scim:api:messages:2.0:PatchOp"}, payload.Schemas)
	require.Len(t, payload.Operations, 1)
	assert.Equal(t, "name.givenName", payload.Operations[0].Path)
}

func TestUserIDValidation(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	for _, id := range []string{"", "a/b", "a?b", "a#b"} {
		_, err := c.GetUser(context.Background(), testCreds(), id)
		var valErr *ValidationError
		require.ErrorAs(t, err, &valErr, "id %q", id)
	}
}

func TestDeleteUserTreatsNotFoundAsDone(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		http.Error(w, "gone already", http.StatusNotFound)
	}))
	require.NoError(t, c.DeleteUser(context.Background(), testCreds(), "u-1"))
}
