package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"idgate/internal/invitation"
	"idgate/pkg/problems"
	"idgate/pkg/wso2"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, slug, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   problems.Type(slug),
		"title":  title,
		"detail": detail,
	})
}

// writeError maps the client error taxonomy onto HTTP responses. Upstream
// bodies stay in the logs; users get a generic message.
func writeError(w http.ResponseWriter, err error) {
	var (
		cfgErr *wso2.ConfigError
		valErr *wso2.ValidationError
		fbdErr *wso2.ForbiddenError
		upErr  *wso2.UpstreamError
	)
	switch {
	case errors.Is(err, invitation.ErrTokenInactive):
		writeProblem(w, http.StatusForbidden, "invitation-inactive", "Invitation not valid", "The invitation link is no longer valid.")
	case errors.Is(err, invitation.ErrAlreadyRegistered):
		writeProblem(w, http.StatusConflict, "already-registered", "Already registered", "Registration for this organization was already completed.")
	case errors.Is(err, invitation.ErrInviteExpired):
		writeProblem(w, http.StatusGone, "invitation-expired", "Invitation expired", "The invitation window has elapsed; ask your contact for a new link.")
	case errors.Is(err, invitation.ErrTokenMismatch):
		writeProblem(w, http.StatusForbidden, "invitation-mismatch", "Invitation not valid", "The invitation link is no longer valid.")
	case errors.As(err, &valErr):
		writeProblem(w, http.StatusBadRequest, "invalid-input", "Invalid input", valErr.Error())
	case errors.As(err, &fbdErr):
		writeProblem(w, http.StatusForbidden, "admin-scope-missing", "Missing administrative scope",
			"The identity server rejected the call; the configured client lacks an administrative scope.")
	case errors.As(err, &cfgErr):
		writeProblem(w, http.StatusInternalServerError, "not-configured", "Service misconfigured", cfgErr.Error())
	case errors.As(err, &upErr):
		writeProblem(w, http.StatusBadGateway, "upstream-failure", "Identity server error", "The identity server could not complete the request.")
	default:
		writeProblem(w, http.StatusBadGateway, "upstream-failure", "Identity server error", "The identity server could not complete the request.")
	}
}
