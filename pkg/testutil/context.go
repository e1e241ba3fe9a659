package testutil

import (
	"net/http"
	"time"

	"homeledger/pkg/requestcontext"
)

// AsCaller attaches ident to the request the way the auth middleware does,
// and pins the request clock to now when it is non-zero.
func AsCaller(req *http.Request, ident requestcontext.Identity, now time.Time) *http.Request {
	ctx := requestcontext.WithIdentity(req.Context(), ident)
	if !now.IsZero() {
		ctx = requestcontext.WithTime(ctx, now)
	}
	return req.WithContext(ctx)
}
