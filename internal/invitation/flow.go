// Package invitation implements the lead→customer registration flow: mint an
// organization-scoped token, mail a link embedding it, verify on landing and
// consume exactly once at registration submit.
package invitation

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"idgate/pkg/metrics"
	"idgate/pkg/wso2"
)

type State string

const (
	StateCreated State = "CREATED"
	StateSent    State = "SENT"
	StateRevoked State = "REVOKED"
	StateUsed    State = "USED"
)

// Verification outcomes. Handlers map each to its own user-facing message;
// everything else that can go wrong during verification is a denial too.
var (
	ErrTokenInactive     = errors.New("invitation token is not active")
	ErrAlreadyRegistered = errors.New("organization already completed registration")
	ErrInviteExpired     = errors.New("invitation window has elapsed")
	ErrTokenMismatch     = errors.New("token does not match the recorded invitation")
)

// Invitation is transient flow state; the durable copy lives in the
// organization's attribute map on the IdP.
type Invitation struct {
	Token          wso2.AccessToken
	OrganizationID string
	Email          string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	State          State
}

type Mailer interface {
	SendInvite(ctx context.Context, to, link string) error
}

type Flow struct {
	idp    *wso2.Client
	creds  wso2.Credentials
	mailer Mailer
	log    *zap.SugaredLogger

	baseURL string
	window  time.Duration
	scopes  []string
}

func NewFlow(idp *wso2.Client, creds wso2.Credentials, mailer Mailer, log *zap.SugaredLogger, baseURL string, window time.Duration, scopes []string) *Flow {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Flow{idp: idp, creds: creds, mailer: mailer, log: log, baseURL: strings.TrimRight(baseURL, "/"), window: window, scopes: scopes}
}

// Fingerprint is what gets persisted into organization attributes instead of
// the raw token value.
func Fingerprint(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Create mints an organization-scoped token and records its fingerprint and
// business expiry on the organization. Any failure after a mint revokes the
// minted tokens before returning: nothing else will ever use them.
func (f *Flow) Create(ctx context.Context, orgID, email string) (Invitation, error) {
	if email == "" {
		return Invitation{}, &wso2.ValidationError{Field: "email", Reason: "empty"}
	}
	scoped, err := f.idp.MintOrganizationToken(ctx, f.creds, orgID, f.scopes)
	if err != nil {
		return Invitation{}, err
	}
	now := time.Now()
	inv := Invitation{
		Token:          scoped,
		OrganizationID: orgID,
		Email:          email,
		CreatedAt:      now,
		ExpiresAt:      now.Add(f.window),
		State:          StateCreated,
	}

	admin, err := f.idp.AcquireClientCredentials(ctx, f.creds, f.scopes)
	if err != nil {
		f.idp.Revoke(ctx, f.creds, scoped.Value)
		return Invitation{}, fmt.Errorf("mint admin token: %w", err)
	}
	ops := []wso2.OrgPatchOp{
		wso2.AttributeOp(wso2.AttrInvitationTokenRef, Fingerprint(scoped.Value)),
		wso2.AttributeOp(wso2.AttrInvitationExpires, inv.ExpiresAt.UTC().Format(time.RFC3339)),
		wso2.AttributeOp(wso2.AttrContactEmail, email),
	}
	if err := f.idp.PatchOrganization(ctx, admin.Value, orgID, ops); err != nil {
		f.idp.Revoke(ctx, f.creds, scoped.Value)
		f.idp.Revoke(ctx, f.creds, admin.Value)
		return Invitation{}, fmt.Errorf("record invitation on organization %s: %w", orgID, err)
	}
	metrics.InvitationsCreated.Inc()
	f.log.Infow("invitation created", "org", orgID, "token", scoped.Preview(), "expires", inv.ExpiresAt)
	return inv, nil
}

// Link builds the registration URL an invitee receives. The contact email is
// base64url-encoded to survive address punctuation in the query string.
func (f *Flow) Link(inv Invitation) string {
	q := url.Values{}
	q.Set("token", inv.Token.Value)
	q.Set("org", inv.OrganizationID)
	q.Set("email", base64.URLEncoding.EncodeToString([]byte(inv.Email)))
	return f.baseURL + "/v1/register/verify?" + q.Encode()
}

// Send dispatches the invitation email. A send failure revokes the token: an
// invitation that never reached its recipient must not stay redeemable.
func (f *Flow) Send(ctx context.Context, inv Invitation) (Invitation, error) {
	if err := f.mailer.SendInvite(ctx, inv.Email, f.Link(inv)); err != nil {
		f.idp.Revoke(ctx, f.creds, inv.Token.Value)
		inv.State = StateRevoked
		return inv, fmt.Errorf("send invitation to org %s: %w", inv.OrganizationID, err)
	}
	inv.State = StateSent
	metrics.InvitationsSent.Inc()
	f.log.Infow("invitation sent", "org", inv.OrganizationID, "token", inv.Token.Preview())
	return inv, nil
}

// Verify checks a presented token on link visit. Fail-closed end to end:
// introspection errors, an already-active customer, a past business expiry
// and a fingerprint mismatch all deny access.
func (f *Flow) Verify(ctx context.Context, token, orgID string) (wso2.Organization, error) {
	intr, err := f.idp.Introspect(ctx, f.creds, token)
	if err != nil {
		metrics.InvitationsVerified.WithLabelValues("error").Inc()
		return wso2.Organization{}, fmt.Errorf("introspection unavailable: %w", err)
	}
	if !intr.Active {
		metrics.InvitationsVerified.WithLabelValues("inactive").Inc()
		return wso2.Organization{}, ErrTokenInactive
	}

	admin, err := f.idp.AcquireClientCredentials(ctx, f.creds, f.scopes)
	if err != nil {
		metrics.InvitationsVerified.WithLabelValues("error").Inc()
		return wso2.Organization{}, err
	}
	org, err := f.idp.GetOrganization(ctx, admin.Value, orgID)
	if err != nil {
		f.idp.Revoke(ctx, f.creds, admin.Value)
		metrics.InvitationsVerified.WithLabelValues("error").Inc()
		return wso2.Organization{}, err
	}
	if strings.EqualFold(org.Attributes.CustomerStatus, "active") {
		metrics.InvitationsVerified.WithLabelValues("replayed").Inc()
		return wso2.Organization{}, ErrAlreadyRegistered
	}
	// Business-level expiry stacks on top of IdP-level liveness.
	if !org.Attributes.InvitationExpires.IsZero() && time.Now().After(org.Attributes.InvitationExpires) {
		metrics.InvitationsVerified.WithLabelValues("expired").Inc()
		return wso2.Organization{}, ErrInviteExpired
	}
	// An org with no recorded invitation has nothing to redeem.
	if ref := org.Attributes.InvitationTokenRef; ref == "" || ref != Fingerprint(token) {
		metrics.InvitationsVerified.WithLabelValues("mismatch").Inc()
		return wso2.Organization{}, ErrTokenMismatch
	}
	metrics.InvitationsVerified.WithLabelValues("ok").Inc()
	return org, nil
}

// Consume completes the registration: creates the user with its roles in one
// bulk call, marks the organization active and revokes the token. The
// transition is irreversible; a failed revoke is logged and left to expiry.
func (f *Flow) Consume(ctx context.Context, token, orgID string, user wso2.User, roleIDs []string) error {
	org, err := f.Verify(ctx, token, orgID)
	if err != nil {
		return err
	}

	ops := wso2.NewUserWithRoles(user, roleIDs)
	if _, err := f.idp.BulkSubmit(ctx, f.creds, ops); err != nil {
		return fmt.Errorf("provision user for organization %s: %w", orgID, err)
	}

	admin, err := f.idp.AcquireClientCredentials(ctx, f.creds, f.scopes)
	if err != nil {
		return err
	}
	patch := []wso2.OrgPatchOp{
		wso2.AttributeOp(wso2.AttrCustomerStatus, "active"),
		wso2.AttributeRemoveOp(wso2.AttrInvitationTokenRef),
	}
	if err := f.idp.PatchOrganization(ctx, admin.Value, org.ID, patch); err != nil {
		f.idp.Revoke(ctx, f.creds, admin.Value)
		return fmt.Errorf("mark organization %s registered: %w", orgID, err)
	}

	if !f.idp.Revoke(ctx, f.creds, token) {
		f.log.Warnw("invitation token revoke did not land", "org", orgID)
	}
	metrics.InvitationsConsumed.Inc()
	f.log.Infow("invitation consumed", "org", orgID, "user", user.UserName)
	return nil
}

// RevokeInvitation is the manual admin action: kill the token and clear the
// recorded reference.
func (f *Flow) RevokeInvitation(ctx context.Context, token, orgID string) error {
	f.idp.Revoke(ctx, f.creds, token)
	admin, err := f.idp.AcquireClientCredentials(ctx, f.creds, f.scopes)
	if err != nil {
		return err
	}
	if err := f.idp.PatchOrganization(ctx, admin.Value, orgID, []wso2.OrgPatchOp{
		wso2.AttributeRemoveOp(wso2.AttrInvitationTokenRef),
	}); err != nil {
		f.idp.Revoke(ctx, f.creds, admin.Value)
		return err
	}
	return nil
}
