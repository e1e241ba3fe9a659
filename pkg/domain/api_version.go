package domain

import (
	"strings"

	dErrors "homeledger/pkg/domain-errors"
)

// APIVersion is the public route prefix a request was served under, and the
// version a bearer token was minted for.
type APIVersion string

const APIVersionV1 APIVersion = "v1"

// apiVersionRank orders the versions this build serves.
var apiVersionRank = map[APIVersion]int{
	APIVersionV1: 1,
}

// ParseAPIVersion accepts "v1" in any case. An empty claim is the caller's
// business; tokens without one are treated as v1 by the version middleware.
func ParseAPIVersion(s string) (APIVersion, error) {
	v := APIVersion(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := apiVersionRank[v]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported api version "+s)
	}
	return v, nil
}

func (v APIVersion) String() string { return string(v) }

func (v APIVersion) IsNil() bool { return v == "" }

// IsAtLeast reports v >= other. A version this build does not serve is never
// at least anything; any served version is at least an unknown one.
func (v APIVersion) IsAtLeast(other APIVersion) bool {
	mine, ok := apiVersionRank[v]
	if !ok {
		return false
	}
	theirs, ok := apiVersionRank[other]
	if !ok {
		return true
	}
	return mine >= theirs
}
