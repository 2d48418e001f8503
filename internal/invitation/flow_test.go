package invitation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idgate/pkg/logger"
	"idgate/pkg/wso2"
)

// idpStub plays the identity server for the whole invitation lifecycle. Org
// attributes persist across calls the way the real attribute map does.
type idpStub struct {
	mu sync.Mutex

	attrs       map[string]map[string]string // orgID -> key -> value
	activeToken string                       // token introspection reports live
	revoked     []string
	bulkCalls   int
	patchFail   bool
	orgGetFail  bool
	introspect  func(w http.ResponseWriter)
}

func newIdPStub() *idpStub {
	return &idpStub{attrs: map[string]map[string]string{}}
}

func (s *idpStub) setAttr(orgID, key, value string) {
	if s.attrs[orgID] == nil {
		s.attrs[orgID] = map[string]string{}
	}
	s.attrs[orgID][key] = value
}

func (s *idpStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.URL.Path == "/oauth2/token":
			json.NewEncoder(w).Encode(map[string]any{"access_token": "admin-token-0123456789", "expires_in": 3600})

		case strings.HasSuffix(r.URL.Path, "/switch"):
			json.NewEncoder(w).Encode(map[string]any{"access_token": "invite-token-0123456789", "expires_in": 3600})

		case r.URL.Path == "/oauth2/introspect":
			if s.introspect != nil {
				s.introspect(w)
				return
			}
			assert.NoError(t, r.ParseForm())
			active := r.PostFormValue("token") == s.activeToken && s.activeToken != ""
			json.NewEncoder(w).Encode(map[string]any{"active": active})

		case r.URL.Path == "/oauth2/revoke":
			assert.NoError(t, r.ParseForm())
			tok := r.PostFormValue("token")
			s.revoked = append(s.revoked, tok)
			if tok == s.activeToken {
				s.activeToken = ""
			}

		case strings.HasPrefix(r.URL.Path, "/api/server/v1/organizations/"):
			orgID := strings.TrimPrefix(r.URL.Path, "/api/server/v1/organizations/")
			switch r.Method {
			case http.MethodGet:
				if s.orgGetFail {
					http.Error(w, "directory down", http.StatusInternalServerError)
					return
				}
				var attrs []map[string]string
				for k, v := range s.attrs[orgID] {
					attrs = append(attrs, map[string]string{"key": k, "value": v})
				}
				json.NewEncoder(w).Encode(map[string]any{"id": orgID, "name": "acme", "status": "ACTIVE", "attributes": attrs})
			case http.MethodPatch:
				if s.patchFail {
					http.Error(w, "patch rejected", http.StatusInternalServerError)
					return
				}
				var ops []wso2.OrgPatchOp
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&ops))
				for _, op := range ops {
					key := strings.TrimPrefix(op.Path, "/attributes/")
					switch op.Operation {
					case "REPLACE":
						s.setAttr(orgID, key, op.Value)
					case "REMOVE":
						delete(s.attrs[orgID], key)
					}
				}
			}

		case r.URL.Path == "/scim2/Bulk":
			s.bulkCalls++
			json.NewEncoder(w).Encode(map[string]any{
				"Operations": []map[string]any{{"method": "POST", "bulkId": wso2.UserBulkID, "status": "201"}},
			})

		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}
}

type stubMailer struct {
	sent []string
	fail bool
}

func (m *stubMailer) SendInvite(_ context.Context, to, link string) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, link)
	return nil
}

func newTestFlow(t *testing.T, stub *idpStub, mailer Mailer) *Flow {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	eps := wso2.Endpoints{
		BaseURL:   srv.URL,
		TokenURL:  srv.URL + "/oauth2/token",
		RevokeURL: srv.URL + "/oauth2/revoke",
		BulkURL:   srv.URL + "/scim2/Bulk",
		UserURL:   srv.URL + "/scim2/Users",
	}
	idp := wso2.NewClient(eps, logger.Nop())
	creds := wso2.Credentials{ClientID: "c", ClientSecret: "s", AdminUsername: "admin", AdminPassword: "pw"}
	return NewFlow(idp, creds, mailer, logger.Nop(), "https://portal.example.com", 7*24*time.Hour, nil)
}

func TestCreateRecordsFingerprintNotToken(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})

	inv, err := flow.Create(context.Background(), "org-42", "owner@acme.com")
	require.NoError(t, err)
	assert.Equal(t, StateCreated, inv.State)
	assert.Equal(t, "invite-token-0123456789", inv.Token.Value)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), inv.ExpiresAt, time.Minute)

	got := stub.attrs["org-42"]
	assert.Equal(t, Fingerprint(inv.Token.Value), got[wso2.AttrInvitationTokenRef])
	assert.NotEqual(t, inv.Token.Value, got[wso2.AttrInvitationTokenRef])
	assert.Equal(t, "owner@acme.com", got[wso2.AttrContactEmail])
	_, err = time.Parse(time.RFC3339, got[wso2.AttrInvitationExpires])
	assert.NoError(t, err)
}

func TestCreateRevokesTokenWhenRecordingFails(t *testing.T) {
	stub := newIdPStub()
	stub.patchFail = true
	flow := newTestFlow(t, stub, &stubMailer{})

	_, err := flow.Create(context.Background(), "org-42", "owner@acme.com")
	require.Error(t, err)
	// Both mints are dead ends here: the scoped invite token and the admin
	// token that failed to record it.
	assert.Contains(t, stub.revoked, "invite-token-0123456789")
	assert.Contains(t, stub.revoked, "admin-token-0123456789")
}

func TestVerifyRevokesAdminTokenWhenOrgFetchFails(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)
	stub.orgGetFail = true

	_, err := flow.Verify(context.Background(), inv.Token.Value, "org-42")
	require.Error(t, err)
	assert.Contains(t, stub.revoked, "admin-token-0123456789")
}

func TestConsumeRevokesAdminTokenWhenActivationFails(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)
	stub.patchFail = true

	err := flow.Consume(context.Background(), inv.Token.Value, "org-42", wso2.User{UserName: "owner@acme.com"}, nil)
	require.Error(t, err)
	assert.Contains(t, stub.revoked, "admin-token-0123456789")
}

func TestLinkEncodesEmail(t *testing.T) {
	flow := newTestFlow(t, newIdPStub(), &stubMailer{})
	inv := Invitation{
		Token:          wso2.AccessToken{Value: "tok-xyz"},
		OrganizationID: "org-42",
		Email:          "owner+billing@acme.com",
	}
	link := flow.Link(inv)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/v1/register/verify", u.Path)
	assert.Equal(t, "tok-xyz", u.Query().Get("token"))
	assert.Equal(t, "org-42", u.Query().Get("org"))
	assert.NotContains(t, link, "owner+billing@acme.com")
}

func TestSendFailureRevokes(t *testing.T) {
	stub := newIdPStub()
	mailer := &stubMailer{fail: true}
	flow := newTestFlow(t, stub, mailer)

	inv, err := flow.Create(context.Background(), "org-42", "owner@acme.com")
	require.NoError(t, err)
	inv, err = flow.Send(context.Background(), inv)
	require.Error(t, err)
	assert.Equal(t, StateRevoked, inv.State)
	assert.Contains(t, stub.revoked, inv.Token.Value)
}

func inviteForVerify(t *testing.T, stub *idpStub, flow *Flow) Invitation {
	t.Helper()
	inv, err := flow.Create(context.Background(), "org-42", "owner@acme.com")
	require.NoError(t, err)
	stub.activeToken = inv.Token.Value
	return inv
}

func TestVerify(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)

	org, err := flow.Verify(context.Background(), inv.Token.Value, "org-42")
	require.NoError(t, err)
	assert.Equal(t, "org-42", org.ID)
}

func TestVerifyDeniesInactiveToken(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)
	stub.activeToken = "" // revoked behind our back

	_, err := flow.Verify(context.Background(), inv.Token.Value, "org-42")
	assert.ErrorIs(t, err, ErrTokenInactive)
}

func TestVerifyDeniesRegisteredOrganization(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)
	stub.setAttr("org-42", wso2.AttrCustomerStatus, "active")

	_, err := flow.Verify(context.Background(), inv.Token.Value, "org-42")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

// The business window denies even while the IdP still reports the token live.
func TestVerifyDeniesPastBusinessExpiry(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)
	stub.setAttr("org-42", wso2.AttrInvitationExpires, time.Now().Add(-time.Hour).UTC().Format(time.RFC3339))

	_, err := flow.Verify(context.Background(), inv.Token.Value, "org-42")
	assert.ErrorIs(t, err, ErrInviteExpired)
}

func TestVerifyDeniesForeignToken(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inviteForVerify(t, stub, flow)
	stub.activeToken = "some-other-live-token"

	_, err := flow.Verify(context.Background(), "some-other-live-token", "org-42")
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

// A live token proves nothing for an organization that never had an
// invitation recorded.
func TestVerifyDeniesOrgWithoutInvitation(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	stub.activeToken = "stray-live-token"

	_, err := flow.Verify(context.Background(), "stray-live-token", "org-99")
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

// Introspection being unreachable is a denial, not a pass.
func TestVerifyFailsClosedOnIntrospectionOutage(t *testing.T) {
	stub := newIdPStub()
	stub.introspect = func(w http.ResponseWriter) {
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}
	flow := newTestFlow(t, stub, &stubMailer{})

	_, err := flow.Verify(context.Background(), "tok-x", "org-42")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenInactive)
}

func TestConsume(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)

	user := wso2.User{UserName: "owner@acme.com", Password: "pw", GivenName: "Ada", FamilyName: "Lovelace"}
	err := flow.Consume(context.Background(), inv.Token.Value, "org-42", user, []string{"role-admin"})
	require.NoError(t, err)

	assert.Equal(t, 1, stub.bulkCalls)
	got := stub.attrs["org-42"]
	assert.Equal(t, "active", got[wso2.AttrCustomerStatus])
	assert.NotContains(t, got, wso2.AttrInvitationTokenRef)
	assert.Contains(t, stub.revoked, inv.Token.Value)

	// Second submit with the same link must not provision again.
	err = flow.Consume(context.Background(), inv.Token.Value, "org-42", user, nil)
	require.Error(t, err)
	assert.Equal(t, 1, stub.bulkCalls)
}

func TestRevokeInvitation(t *testing.T) {
	stub := newIdPStub()
	flow := newTestFlow(t, stub, &stubMailer{})
	inv := inviteForVerify(t, stub, flow)

	require.NoError(t, flow.RevokeInvitation(context.Background(), inv.Token.Value, "org-42"))
	assert.Contains(t, stub.revoked, inv.Token.Value)
	assert.NotContains(t, stub.attrs["org-42"], wso2.AttrInvitationTokenRef)

	_, err := flow.Verify(context.Background(), inv.Token.Value, "org-42")
	assert.ErrorIs(t, err, ErrTokenInactive)
}

func TestFingerprintStability(t *testing.T) {
	assert.Equal(t, Fingerprint("tok"), Fingerprint("tok"))
	assert.NotEqual(t, Fingerprint("tok"), Fingerprint("tok2"))
	assert.Len(t, Fingerprint("tok"), 64)
}
