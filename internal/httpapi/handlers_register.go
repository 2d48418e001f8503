package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"idgate/pkg/wso2"
)

// verifyInvitation is the landing check behind the emailed link. Liveness is
// re-checked against the IdP on every visit; there is no local session.
func (s *Server) verifyInvitation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	orgID := q.Get("org")
	if token == "" || orgID == "" {
		writeProblem(w, http.StatusBadRequest, "invalid-input", "Invalid input", "token and org are required")
		return
	}
	org, err := s.flow.Verify(r.Context(), token, orgID)
	if err != nil {
		s.log.Warnw("invitation verify denied", "org", orgID, "err", err)
		writeError(w, err)
		return
	}
	email := ""
	if enc := q.Get("email"); enc != "" {
		if b, err := base64.URLEncoding.DecodeString(enc); err == nil {
			email = string(b)
		}
	}
	writeJSON(w, map[string]any{
		"valid":        true,
		"organization": map[string]any{"id": org.ID, "name": org.Name},
		"email":        email,
	}, http.StatusOK)
}

func (s *Server) submitRegistration(w http.ResponseWriter, r *http.Request) {
	var b struct {
		Token      string   `json:"token"`
		OrgID      string   `json:"org"`
		UserName   string   `json:"user_name"`
		Password   string   `json:"password"`
		GivenName  string   `json:"given_name"`
		FamilyName string   `json:"family_name"`
		Email      string   `json:"email"`
		RoleIDs    []string `json:"role_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}
	if b.Token == "" || b.OrgID == "" || b.UserName == "" {
		writeProblem(w, http.StatusBadRequest, "invalid-input", "Invalid input", "token, org and user_name are required")
		return
	}
	user := wso2.User{
		UserName:   b.UserName,
		Password:   b.Password,
		GivenName:  b.GivenName,
		FamilyName: b.FamilyName,
		Email:      b.Email,
	}
	if err := s.flow.Consume(r.Context(), b.Token, b.OrgID, user, b.RoleIDs); err != nil {
		s.log.Warnw("registration rejected", "org", b.OrgID, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true}, http.StatusCreated)
}
