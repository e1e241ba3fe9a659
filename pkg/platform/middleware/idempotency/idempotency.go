// Package idempotency replays the first response for a repeated
// Idempotency-Key so client retries of mutating calls are safe.
//
// Keys are scoped to the caller, method and path. A retry with a different
// body under the same key is rejected rather than replayed.
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/requestcontext"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	maxKeyLength   = 255
)

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware is a no-op for requests without the header or for safe methods.
// Server errors release the key so the client may retry.
func Middleware(store Store, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unable to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			fingerprint := hex.EncodeToString(sum[:])

			scoped := requestcontext.UserID(ctx).String() + ":" + r.Method + ":" + r.URL.Path + ":" + key
			prior, reserved, err := store.Reserve(ctx, scoped, ttl)
			if err != nil {
				logger.ErrorContext(ctx, "idempotency store unavailable",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "idempotency store unavailable"))
				return
			}
			if !reserved {
				if prior == nil {
					httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a request with this Idempotency-Key is in progress"))
					return
				}
				if prior.Fingerprint != fingerprint {
					httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "Idempotency-Key was reused with a different request body"))
					return
				}
				if prior.ContentType != "" {
					w.Header().Set("Content-Type", prior.ContentType)
				}
				w.Header().Set(HeaderReplayed, "true")
				w.WriteHeader(prior.Status)
				_, _ = w.Write(prior.Body)
				return
			}

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(requestcontext.WithIdempotencyKey(ctx, key)))

			if rec.status == 0 || rec.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					logger.WarnContext(ctx, "failed to release idempotency key", "error", err)
				}
				return
			}
			resp := Response{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				Fingerprint: fingerprint,
			}
			if err := store.Complete(ctx, scoped, resp, ttl); err != nil {
				logger.WarnContext(ctx, "failed to store idempotent response", "error", err)
			}
		})
	}
}
