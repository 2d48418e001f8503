// cmd/idgate-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"idgate/internal/audit"
	"idgate/internal/httpapi"
	"idgate/internal/invitation"
	"idgate/internal/leads"
	"idgate/internal/policy"
	"idgate/pkg/config"
	"idgate/pkg/db"
	"idgate/pkg/logger"
	"idgate/pkg/wso2"
)

func main() {
	// 1. Load configuration & initialize structured logger.
	cfg := config.Load()
	appLog := logger.New(cfg.Env)
	defer appLog.Sync()

	// 2. Optional storage handles (audit pool, scope cache).
	pool := db.MustConnect(cfg, appLog)
	rdb := db.MustRedis(cfg, appLog)

	// 3. IdP client with explicit credentials; nothing token-related is
	// ambient state.
	creds := wso2.Credentials{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	}
	eps := wso2.Endpoints{
		BaseURL:   cfg.ISURL,
		TokenURL:  cfg.TokenURL,
		RevokeURL: cfg.RevokeURL,
		BulkURL:   cfg.BulkURL,
		UserURL:   cfg.UserURL,
	}
	opts := []wso2.Option{wso2.WithIntrospectTimeout(cfg.IntrospectTimeout)}
	if rdb != nil {
		opts = append(opts, wso2.WithScopeCache(wso2.NewScopeCache(rdb, appLog)))
	}
	idp := wso2.NewClient(eps, appLog, opts...)
	scopes := strings.Fields(cfg.Scopes)

	// 4. Domain services.
	gate, err := policy.NewGate(context.Background(), cfg.PolicyFile, appLog)
	if err != nil {
		appLog.Fatalw("policy load", "file", cfg.PolicyFile, "err", err)
	}
	mappings, err := leads.LoadMappings(cfg.LeadMappingsFile)
	if err != nil {
		appLog.Fatalw("lead mappings load", "file", cfg.LeadMappingsFile, "err", err)
	}
	leadSvc := leads.NewService(idp, creds, mappings, scopes, appLog)
	mailer := invitation.NewSendgridMailer(cfg.SendgridAPIKey, cfg.InviteFromEmail, appLog)
	flow := invitation.NewFlow(idp, creds, mailer, appLog, cfg.InviteBaseURL, cfg.InviteWindow, scopes)

	rec := audit.New(pool, appLog)
	if err := rec.EnsureSchema(context.Background()); err != nil {
		appLog.Fatalw("audit schema", "err", err)
	}

	// 5. HTTP server.
	srv := httpapi.New(cfg, appLog, idp, creds, flow, leadSvc, gate, rec)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}
	go func() {
		appLog.Infow("idgate listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	// 6. Wait for termination signal (SIGINT/SIGTERM) to begin graceful shutdown.
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	fmt.Println("idgate stopped")
}
