// Package email holds the one email comparison rule shared by registration and
// invitation matching: addresses are trimmed and lower-cased before use.
package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "homeledger/pkg/domain-errors"
)

const maxEmailLength = 254

// Normalize returns the canonical form used for storage and comparison.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Equal compares two addresses under the registration rule.
func Equal(a, b string) bool {
	return Normalize(a) != "" && Normalize(a) == Normalize(b)
}

// Validate checks an invitee address and returns its canonical form.
// Display-name forms ("Jane <jane@example.com>") are rejected.
func Validate(address string) (string, error) {
	normalized := Normalize(address)
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(normalized) > maxEmailLength {
		return "", dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	parsed, err := mail.ParseAddress(normalized)
	if err != nil || parsed.Address != normalized || parsed.Name != "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	at := strings.LastIndexByte(normalized, '@')
	if at <= 0 || !strings.Contains(normalized[at+1:], ".") {
		return "", dErrors.New(dErrors.CodeValidation, "email domain is invalid")
	}
	return normalized, nil
}

// DeriveDisplayName builds a human label from the local part of an address,
// used when the identity layer supplies no display name.
func DeriveDisplayName(address string) string {
	localPart := Normalize(address)
	if at := strings.IndexByte(localPart, '@'); at >= 0 {
		localPart = localPart[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Unknown"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
