package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idgate/internal/audit"
	"idgate/internal/policy"
	"idgate/pkg/middleware"
)

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	items, err := s.leads.List(r.Context())
	if err != nil {
		s.log.Errorw("list leads", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": items}, http.StatusOK)
}

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	var b struct {
		Company      string `json:"company"`
		ContactEmail string `json:"contact_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}
	org, err := s.leads.Create(r.Context(), b.Company, b.ContactEmail)
	if err != nil {
		s.log.Errorw("create lead", "company", b.Company, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"id": org.ID, "name": org.Name}, http.StatusCreated)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	org, err := s.leads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"id":     org.ID,
		"name":   org.Name,
		"status": org.Status,
		"attributes": map[string]any{
			"lead_status":     org.Attributes.LeadStatus,
			"customer_status": org.Attributes.CustomerStatus,
			"contact_email":   org.Attributes.ContactEmail,
		},
	}, http.StatusOK)
}

// gated wraps an admin action with the policy gate and the audit trail.
func (s *Server) gated(r *http.Request, action, orgID string, input map[string]any, run func() error) (allowed bool, err error) {
	start := time.Now()
	ctx := r.Context()
	ev := audit.Event{
		Action:         action,
		OrganizationID: orgID,
		ActorSub:       middleware.ActorSub(ctx),
		RequestID:      middleware.RequestIDFrom(ctx),
	}
	dec := s.gate.Evaluate(ctx, action, input)
	if dec.Status != policy.Allow {
		ev.Status = "denied"
		ev.Duration = time.Since(start)
		s.audit.Record(ctx, ev)
		return false, nil
	}
	err = run()
	if err != nil {
		ev.Status = "failed"
		ev.Detail = err.Error()
	} else {
		ev.Status = "ok"
	}
	ev.Duration = time.Since(start)
	s.audit.Record(ctx, ev)
	return true, err
}

func (s *Server) convertLead(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")
	var result map[string]any
	allowed, err := s.gated(r, "lead.convert", orgID, map[string]any{"organization_id": orgID}, func() error {
		org, err := s.leads.Convert(r.Context(), orgID)
		if err != nil {
			return err
		}
		result = map[string]any{"id": org.ID, "name": org.Name, "lead_status": org.Attributes.LeadStatus}
		return nil
	})
	if !allowed {
		writeProblem(w, http.StatusForbidden, "action-blocked", "Action blocked by policy", "The conversion was denied by the configured admin policy.")
		return
	}
	if err != nil {
		s.log.Errorw("convert lead", "org", orgID, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

func (s *Server) inviteLead(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")
	var b struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}
	var expires string
	allowed, err := s.gated(r, "invitation.send", orgID, map[string]any{"organization_id": orgID, "email": b.Email}, func() error {
		inv, err := s.flow.Create(r.Context(), orgID, b.Email)
		if err != nil {
			return err
		}
		inv, err = s.flow.Send(r.Context(), inv)
		if err != nil {
			return err
		}
		expires = inv.ExpiresAt.UTC().Format(time.RFC3339)
		return nil
	})
	if !allowed {
		writeProblem(w, http.StatusForbidden, "action-blocked", "Action blocked by policy", "The invitation was denied by the configured admin policy.")
		return
	}
	if err != nil {
		s.log.Errorw("invite lead", "org", orgID, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "expires_at": expires}, http.StatusAccepted)
}

func (s *Server) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")
	var b struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&b)
	if err := s.flow.RevokeInvitation(r.Context(), b.Token, orgID); err != nil {
		s.log.Errorw("revoke invitation", "org", orgID, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}
