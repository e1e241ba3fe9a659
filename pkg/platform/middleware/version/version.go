// Package version pins requests to the API version of the route prefix that
// served them and refuses tokens minted for a newer version.
package version

import (
	"log/slog"
	"net/http"

	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/requestcontext"
)

// ExtractVersion records v as the route version. Mount it on the versioned
// subrouter:
//
//	r.Route("/v1", func(v1 chi.Router) {
//	    v1.Use(version.ExtractVersion(id.APIVersionV1))
//	})
func ExtractVersion(v id.APIVersion) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithAPIVersion(r.Context(), v)))
		})
	}
}

// ValidateTokenVersion rejects a token whose version is newer than the route.
// Older tokens are accepted on newer routes. It must run after ExtractVersion
// and auth.RequireAuth.
func ValidateTokenVersion(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			route := requestcontext.APIVersion(ctx)
			if route.IsNil() {
				logger.ErrorContext(ctx, "route version not set",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "route version not configured"))
				return
			}

			token := requestcontext.TokenAPIVersion(ctx)
			if token.IsNil() {
				token = id.APIVersionV1
			}
			if !route.IsAtLeast(token) {
				logger.WarnContext(ctx, "token version newer than route",
					"token_version", token.String(),
					"route_version", route.String(),
					"user_id", requestcontext.UserID(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token api version is not accepted on this endpoint"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
