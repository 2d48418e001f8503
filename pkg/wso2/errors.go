package wso2

import "fmt"

// ConfigError means a required endpoint or credential was absent for the
// attempted call path. It is a caller/deployment problem, not an IdP problem.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string { return "wso2: missing configuration: " + e.Field }

// UpstreamError is any non-2xx or malformed response from the IdP. Body is
// kept for diagnostics; handlers must not leak it to end users.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("wso2: upstream %s returned %d", e.Endpoint, e.Status)
}

// ForbiddenError is an HTTP 403 from the IdP. Kept distinct from
// UpstreamError because it signals a missing admin scope that the UI has to
// explain differently.
type ForbiddenError struct {
	Endpoint string
}

func (e *ForbiddenError) Error() string { return "wso2: forbidden by " + e.Endpoint }

// ValidationError is bad caller input detected before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wso2: invalid %s: %s", e.Field, e.Reason)
}
