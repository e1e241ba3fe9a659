// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values once per request; services read them without
// importing net/http.
//
//	actorID := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "homeledger/pkg/domain"
)

type (
	userIDKey      struct{}
	roleKey        struct{}
	emailKey       struct{}
	displayNameKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	idemKeyKey     struct{}
	tokenVerKey    struct{}
	apiVersionKey  struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyUserID         = userIDKey{}
	ContextKeyRole           = roleKey{}
	ContextKeyEmail          = emailKey{}
	ContextKeyDisplayName    = displayNameKey{}
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyRequestTime    = requestTimeKey{}
	ContextKeyIdempotencyKey = idemKeyKey{}
	ContextKeyTokenVersion   = tokenVerKey{}
	ContextKeyAPIVersion     = apiVersionKey{}
)

// -----------------------------------------------------------------------------
// Caller identity
// -----------------------------------------------------------------------------

// Identity is the verified caller as established by the auth middleware.
type Identity struct {
	UserID       id.UserID
	Role         id.Role
	Email        string
	DisplayName  string
	TokenVersion id.APIVersion // empty on tokens minted before the claim existed
}

// WithIdentity injects every identity field at once.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, ident.UserID)
	ctx = context.WithValue(ctx, ContextKeyRole, ident.Role)
	ctx = context.WithValue(ctx, ContextKeyEmail, ident.Email)
	ctx = context.WithValue(ctx, ContextKeyDisplayName, ident.DisplayName)
	ctx = context.WithValue(ctx, ContextKeyTokenVersion, ident.TokenVersion)
	return ctx
}

// CallerIdentity reads back what WithIdentity stored. Missing fields are zero.
func CallerIdentity(ctx context.Context) Identity {
	return Identity{
		UserID:       UserID(ctx),
		Role:         Role(ctx),
		Email:        Email(ctx),
		DisplayName:  DisplayName(ctx),
		TokenVersion: TokenAPIVersion(ctx),
	}
}

// UserID retrieves the authenticated user ID from the context.
// Returns the zero value (nil UUID) if not set.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

func Role(ctx context.Context) id.Role {
	if role, ok := ctx.Value(ContextKeyRole).(id.Role); ok {
		return role
	}
	return ""
}

func Email(ctx context.Context) string {
	if email, ok := ctx.Value(ContextKeyEmail).(string); ok {
		return email
	}
	return ""
}

func DisplayName(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeyDisplayName).(string); ok {
		return name
	}
	return ""
}

func TokenAPIVersion(ctx context.Context) id.APIVersion {
	if v, ok := ctx.Value(ContextKeyTokenVersion).(id.APIVersion); ok {
		return v
	}
	return ""
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// IdempotencyKey returns the client-supplied Idempotency-Key, if any.
func IdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(ContextKeyIdempotencyKey).(string); ok {
		return key
	}
	return ""
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ContextKeyIdempotencyKey, key)
}

// APIVersion is the version of the route prefix serving the request.
func APIVersion(ctx context.Context) id.APIVersion {
	if v, ok := ctx.Value(ContextKeyAPIVersion).(id.APIVersion); ok {
		return v
	}
	return ""
}

func WithAPIVersion(ctx context.Context, v id.APIVersion) context.Context {
	return context.WithValue(ctx, ContextKeyAPIVersion, v)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for service unit tests and for workers that need one "now" per batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
