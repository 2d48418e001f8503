// Package leads treats IdP organizations named with the lead- prefix as CRM
// lead records. Conversion is a rename plus attribute patch, not a type
// change; the active organization is the same resource afterwards.
package leads

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"idgate/pkg/wso2"
)

const Prefix = "lead-"

type Service struct {
	idp      *wso2.Client
	creds    wso2.Credentials
	mappings []Mapping
	scopes   []string
	log      *zap.SugaredLogger
}

func NewService(idp *wso2.Client, creds wso2.Credentials, mappings []Mapping, scopes []string, log *zap.SugaredLogger) *Service {
	if len(mappings) == 0 {
		mappings = DefaultMappings()
	}
	return &Service{idp: idp, creds: creds, mappings: mappings, scopes: scopes, log: log}
}

var (
	camelRe  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonWord  = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	dashRuns = regexp.MustCompile(`-+`)
)

// Slug normalizes a company name into the organization name segment.
func Slug(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = camelRe.ReplaceAllString(s, `$1-$2`)
	s = nonWord.ReplaceAllString(s, "-")
	s = strings.ToLower(strings.Trim(s, "-"))
	return dashRuns.ReplaceAllString(s, "-")
}

// Summary is one row of the lead dashboard.
type Summary struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (s *Service) adminToken(ctx context.Context) (wso2.AccessToken, error) {
	return s.idp.AcquireClientCredentials(ctx, s.creds, s.scopes)
}

// Create registers a new lead organization.
func (s *Service) Create(ctx context.Context, company, contactEmail string) (wso2.Organization, error) {
	slug := Slug(company)
	if slug == "" {
		return wso2.Organization{}, &wso2.ValidationError{Field: "company", Reason: "empty after normalization"}
	}
	tok, err := s.adminToken(ctx)
	if err != nil {
		return wso2.Organization{}, err
	}
	attrs := wso2.OrgAttributes{LeadStatus: "NEW", ContactEmail: contactEmail}
	org, err := s.idp.CreateOrganization(ctx, tok.Value, Prefix+slug, attrs)
	if err != nil {
		return wso2.Organization{}, err
	}
	s.log.Infow("lead created", "org", org.ID, "name", org.Name)
	return org, nil
}

// List fetches lead organizations and projects each through the summary
// mappings. Detail fetches are sequential; the list sizes this is used for
// do not justify fan-out.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	tok, err := s.adminToken(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := s.idp.ListOrganizations(ctx, tok.Value, "name sw "+Prefix)
	if err != nil {
		return nil, err
	}
	out := []Summary{}
	for _, ref := range refs {
		if !strings.HasPrefix(ref.Name, Prefix) {
			continue
		}
		org, err := s.idp.GetOrganization(ctx, tok.Value, ref.ID)
		if err != nil {
			s.log.Warnw("lead detail fetch failed", "org", ref.ID, "err", err)
			continue
		}
		fields, err := ApplyMappings(s.mappings, map[string]any{"org": org.Raw})
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{ID: org.ID, Fields: fields})
	}
	return out, nil
}

// Get returns one lead with its attribute map.
func (s *Service) Get(ctx context.Context, orgID string) (wso2.Organization, error) {
	tok, err := s.adminToken(ctx)
	if err != nil {
		return wso2.Organization{}, err
	}
	return s.idp.GetOrganization(ctx, tok.Value, orgID)
}

// Convert promotes a lead to an active organization: the lead- prefix is
// stripped from the name and lead_status becomes ACTIVE. Sibling
// organizations are never touched.
func (s *Service) Convert(ctx context.Context, orgID string) (wso2.Organization, error) {
	tok, err := s.adminToken(ctx)
	if err != nil {
		return wso2.Organization{}, err
	}
	org, err := s.idp.GetOrganization(ctx, tok.Value, orgID)
	if err != nil {
		return wso2.Organization{}, err
	}
	if !strings.HasPrefix(org.Name, Prefix) {
		return wso2.Organization{}, &wso2.ValidationError{Field: "organization", Reason: fmt.Sprintf("%s is not a lead", org.Name)}
	}
	ops := []wso2.OrgPatchOp{
		wso2.RenameOp(strings.TrimPrefix(org.Name, Prefix)),
		wso2.AttributeOp(wso2.AttrLeadStatus, "ACTIVE"),
	}
	if err := s.idp.PatchOrganization(ctx, tok.Value, orgID, ops); err != nil {
		return wso2.Organization{}, err
	}
	converted, err := s.idp.GetOrganization(ctx, tok.Value, orgID)
	if err != nil {
		return wso2.Organization{}, err
	}
	s.log.Infow("lead converted", "org", orgID, "name", converted.Name)
	return converted, nil
}
