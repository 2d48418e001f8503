// Package httpapi mounts the admin/CRM surface over the IdP client packages.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"idgate/internal/audit"
	"idgate/internal/invitation"
	"idgate/internal/leads"
	"idgate/internal/policy"
	"idgate/pkg/config"
	"idgate/pkg/middleware"
	"idgate/pkg/wso2"
)

type Server struct {
	cfg   config.Config
	log   *zap.SugaredLogger
	idp   *wso2.Client
	creds wso2.Credentials
	flow  *invitation.Flow
	leads *leads.Service
	gate  *policy.Gate
	audit *audit.Recorder
}

func New(cfg config.Config, log *zap.SugaredLogger, idp *wso2.Client, creds wso2.Credentials, flow *invitation.Flow, leadSvc *leads.Service, gate *policy.Gate, rec *audit.Recorder) *Server {
	return &Server{cfg: cfg, log: log, idp: idp, creds: creds, flow: flow, leads: leadSvc, gate: gate, audit: rec}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(s.log))
	r.Use(middleware.Tracing())
	r.Use(middleware.AdminAuth(s.cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Public registration surface (reached from invitation emails).
	r.Get("/v1/register/verify", s.verifyInvitation)
	r.Post("/v1/register", s.submitRegistration)

	// Admin surface.
	r.Route("/v1", func(ar chi.Router) {
		ar.Use(middleware.RequireAnyScope(middleware.ScopeAdmin))
		ar.Route("/leads", func(lr chi.Router) {
			lr.Get("/", s.listLeads)
			lr.Post("/", s.createLead)
			lr.Get("/{id}", s.getLead)
			lr.Post("/{id}/convert", s.convertLead)
			lr.Post("/{id}/invite", s.inviteLead)
			lr.Delete("/{id}/invite", s.revokeInvitation)
		})
		ar.Route("/users", func(ur chi.Router) {
			ur.Post("/", s.createUser)
			ur.Patch("/{id}", s.updateUser)
			ur.Delete("/{id}", s.deleteUser)
		})
	})
	return r
}
