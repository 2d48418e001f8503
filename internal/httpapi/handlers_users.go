package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idgate/pkg/wso2"
)

type userBody struct {
	UserName   string   `json:"user_name"`
	Password   string   `json:"password,omitempty"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Email      string   `json:"email"`
	RoleIDs    []string `json:"role_ids"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var b userBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}
	if b.UserName == "" {
		writeProblem(w, http.StatusBadRequest, "invalid-input", "Invalid input", "user_name is required")
		return
	}
	user := wso2.User{
		UserName:   b.UserName,
		Password:   b.Password,
		GivenName:  b.GivenName,
		FamilyName: b.FamilyName,
		Email:      b.Email,
	}
	res, err := s.idp.BulkSubmit(r.Context(), s.creds, wso2.NewUserWithRoles(user, b.RoleIDs))
	if err != nil {
		s.log.Errorw("create user", "user", b.UserName, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "operations": res.Operations}, http.StatusCreated)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var b struct {
		GivenName  string    `json:"given_name"`
		FamilyName string    `json:"family_name"`
		Email      string    `json:"email"`
		RoleIDs    *[]string `json:"role_ids"` // nil means leave memberships alone
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad-json", "Malformed request body", err.Error())
		return
	}

	patch := wso2.BuildUserPatchOperations(wso2.UserPatch{
		GivenName:  b.GivenName,
		FamilyName: b.FamilyName,
		Email:      b.Email,
	})
	if len(patch) > 0 {
		if err := s.idp.PatchUser(r.Context(), s.creds, userID, patch); err != nil {
			s.log.Errorw("patch user", "user", userID, "err", err)
			writeError(w, err)
			return
		}
	}

	if b.RoleIDs != nil {
		current, err := s.idp.GetUser(r.Context(), s.creds, userID)
		if err != nil {
			writeError(w, err)
			return
		}
		added, removed := wso2.RoleDelta(current.RoleIDs, *b.RoleIDs)
		if ops := wso2.RoleMembershipOps(current.ID, added, removed); len(ops) > 0 {
			if _, err := s.idp.BulkSubmit(r.Context(), s.creds, ops); err != nil {
				s.log.Errorw("patch user roles", "user", userID, "err", err)
				writeError(w, err)
				return
			}
		}
	}
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := s.idp.DeleteUser(r.Context(), s.creds, userID); err != nil {
		s.log.Errorw("delete user", "user", userID, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}
