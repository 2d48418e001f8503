// pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idgate_tokens_minted_total",
		Help: "Access tokens obtained from the IdP, by grant.",
	}, []string{"grant"})

	TokenMintFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idgate_token_mint_failures_total",
		Help: "Failed token mints, by grant.",
	}, []string{"grant"})

	Introspections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idgate_introspections_total",
		Help: "Token introspections, by outcome (active, inactive, error).",
	}, []string{"outcome"})

	Revocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idgate_revocations_total",
		Help: "Token revocations, by outcome (ok, rejected, error).",
	}, []string{"outcome"})

	ScimBulk = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idgate_scim_bulk_requests_total",
		Help: "SCIM2 bulk submissions, by outcome (ok, forbidden, rejected, error).",
	}, []string{"outcome"})

	InvitationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idgate_invitations_created_total",
		Help: "Invitation tokens minted.",
	})

	InvitationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idgate_invitations_sent_total",
		Help: "Invitation emails dispatched.",
	})

	InvitationsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idgate_invitations_verified_total",
		Help: "Invitation link verifications, by outcome.",
	}, []string{"outcome"})

	InvitationsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idgate_invitations_consumed_total",
		Help: "Invitations consumed by a completed registration.",
	})
)
