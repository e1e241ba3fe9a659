package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/email"
	"homeledger/pkg/requestcontext"
)

// Claims is the access token body issued by the identity provider.
// APIVersion pins the token to a route version; absent means v1.
type Claims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens and turns them into a caller identity.
type TokenVerifier struct {
	signingKey []byte
	issuer     string
}

func NewTokenVerifier(signingKey, issuer string) *TokenVerifier {
	return &TokenVerifier{signingKey: []byte(signingKey), issuer: issuer}
}

// Issue signs a token for the given identity. Used by tooling and tests;
// production tokens come from the identity provider sharing the key.
func (v *TokenVerifier) Issue(ident requestcontext.Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	version := ident.TokenVersion
	if version.IsNil() {
		version = id.APIVersionV1
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:     ident.UserID.String(),
		Role:       ident.Role.String(),
		Email:      ident.Email,
		Name:       ident.DisplayName,
		APIVersion: version.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(v.signingKey)
}

// Verify parses the token and returns the identity it asserts.
func (v *TokenVerifier) Verify(tokenString string) (requestcontext.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims.identity()
}

func (c *Claims) identity() (requestcontext.Identity, error) {
	rawID := c.UserID
	if rawID == "" {
		rawID = c.Subject
	}
	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "token subject is not a valid user id")
	}
	role, err := id.ParseRole(c.Role)
	if err != nil {
		return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "token role is not recognised")
	}
	var version id.APIVersion
	if c.APIVersion != "" {
		if version, err = id.ParseAPIVersion(c.APIVersion); err != nil {
			return requestcontext.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "token api version is not supported")
		}
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = email.DeriveDisplayName(c.Email)
	}
	return requestcontext.Identity{
		UserID:       userID,
		Role:         role,
		Email:        email.Normalize(c.Email),
		DisplayName:  name,
		TokenVersion: version,
	}, nil
}
