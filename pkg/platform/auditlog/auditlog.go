// Package auditlog writes the one-line-per-transition audit records every
// service emits.
package auditlog

import (
	"context"
	"log/slog"

	"homeledger/pkg/requestcontext"
)

// Log writes event at info level tagged log_type=audit, with the request id
// when the context carries one. A nil logger is a no-op.
func Log(ctx context.Context, logger *slog.Logger, event string, attributes ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	logger.InfoContext(ctx, event, args...)
}
