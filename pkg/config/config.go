// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// WSO2 Identity Server endpoints & OAuth2 client credentials
	ISURL         string // base URL, e.g. https://is.example.com
	TokenURL      string
	RevokeURL     string
	BulkURL       string // SCIM2 /Bulk endpoint
	UserURL       string // SCIM2 /Users endpoint
	ClientID      string
	ClientSecret  string
	AdminUsername string
	AdminPassword string

	// Scopes requested on client-credentials mints (space-separated)
	Scopes string

	// Admin API bearer validation (dev bypass when JWKS unset)
	AdminIssuer   string
	AdminAudience string
	AdminJWKSURL  string

	// Invitation flow
	InviteBaseURL   string
	InviteFromEmail string
	InviteWindow    time.Duration
	SendgridAPIKey  string

	// Lead summary field mappings (YAML) and admin action policy (rego)
	LeadMappingsFile string
	PolicyFile       string

	// Redis & Postgres (both optional)
	RedisURL    string
	DatabaseURL string

	IntrospectTimeout time.Duration
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:               env("IDGATE_ENV", "dev"),
		HTTPAddr:          env("IDGATE_HTTP_ADDR", ":8080"),
		ISURL:             env("IS_URL", ""),
		TokenURL:          env("IS_TOKEN_URL", ""),
		RevokeURL:         env("IS_REVOKE_URL", ""),
		BulkURL:           env("BULK_URL", ""),
		UserURL:           env("USER_URL", ""),
		ClientID:          env("IS_CLIENT_ID", ""),
		ClientSecret:      env("IS_CLIENT_SECRET", ""),
		AdminUsername:     env("WSO2_ADMIN_USERNAME", ""),
		AdminPassword:     env("WSO2_ADMIN_PASSWORD", ""),
		Scopes:            env("IS_SCOPES", "internal_org_user_mgt_create internal_org_user_mgt_list internal_organization_admin"),
		AdminIssuer:       env("ADMIN_OIDC_ISSUER", ""),
		AdminAudience:     env("ADMIN_OIDC_AUDIENCE", "idgate-admin"),
		AdminJWKSURL:      env("ADMIN_JWKS_URL", ""),
		InviteBaseURL:     env("INVITE_BASE_URL", "http://localhost:8080"),
		InviteFromEmail:   env("INVITE_FROM_EMAIL", "no-reply@example.com"),
		InviteWindow:      envDur("INVITE_WINDOW_HOURS", 168) * time.Hour,
		SendgridAPIKey:    env("SENDGRID_API_KEY", ""),
		LeadMappingsFile:  env("LEAD_MAPPINGS_FILE", ""),
		PolicyFile:        env("POLICY_FILE", ""),
		RedisURL:          env("REDIS_URL", ""),
		DatabaseURL:       env("DATABASE_URL", ""),
		IntrospectTimeout: envDur("INTROSPECT_TIMEOUT_SEC", 5) * time.Second,
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — audit events are disabled")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
