package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	connectionhandler "homeledger/internal/connection/handler"
	historyhandler "homeledger/internal/history/handler"
	invitationhandler "homeledger/internal/invitation/handler"
	"homeledger/internal/platform/config"
	propertyhandler "homeledger/internal/property/handler"
	workhandler "homeledger/internal/workrecord/handler"
	id "homeledger/pkg/domain"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/platform/middleware/auth"
	"homeledger/pkg/platform/middleware/idempotency"
	"homeledger/pkg/platform/middleware/metadata"
	"homeledger/pkg/platform/middleware/requesttime"
	"homeledger/pkg/platform/middleware/version"
)

func newRouter(cfg config.Server, log *slog.Logger, svc *services, in *infra) http.Handler {
	r := chi.NewRouter()
	r.Use(metadata.RequestMetadata)
	r.Use(chimiddleware.Recoverer)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(in.checks))
	r.Handle("/metrics", promhttp.Handler())

	verifier := auth.NewTokenVerifier(cfg.JWTSigningKey, cfg.JWTIssuer)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(version.ExtractVersion(id.APIVersionV1))
		v1.Use(auth.RequireAuth(verifier, log))
		v1.Use(version.ValidateTokenVersion(log))
		v1.Use(idempotency.Middleware(in.idempotency, cfg.IdempotencyTTL, log))

		propertyhandler.New(svc.properties, log).Register(v1)
		workhandler.New(svc.work, log).Register(v1)
		connectionhandler.New(svc.connections, log).Register(v1)
		historyhandler.New(svc.history, log).Register(v1)
		invitationhandler.New(svc.invitations, log).Register(v1)
	})
	return r
}

// healthHandler reports 503 when any dependency check fails.
func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": report})
	}
}
