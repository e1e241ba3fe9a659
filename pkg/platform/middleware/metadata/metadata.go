// Package metadata tags each request with an id that appears in every log
// and audit line the request produces.
package metadata

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"homeledger/pkg/requestcontext"
)

// HeaderRequestID is read from the request and echoed on the response.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// RequestMetadata keeps a caller-supplied request id when it is printable
// and short, otherwise it mints one. Mount it before anything that logs.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if !acceptable(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), requestID)))
	})
}

// acceptable rejects ids that could forge log fields.
func acceptable(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e || c == '"' || c == '=' {
			return false
		}
	}
	return true
}
