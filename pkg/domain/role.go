package domain

import (
	"strings"

	dErrors "homeledger/pkg/domain-errors"
)

// Role is the actor role established by the identity layer.
// Invariant: the value must be one of the supported roles.
type Role string

const (
	RoleHomeowner  Role = "HOMEOWNER"
	RoleContractor Role = "CONTRACTOR"
	RoleRealtor    Role = "REALTOR"
	RoleInspector  Role = "INSPECTOR"
)

var validRoles = map[Role]bool{
	RoleHomeowner:  true,
	RoleContractor: true,
	RoleRealtor:    true,
	RoleInspector:  true,
}

// ParseRole constructs a Role from token claims or request input.
// Matching is case-insensitive; "PRO" is accepted as an alias for contractor.
func ParseRole(s string) (Role, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	if s == "PRO" {
		return RoleContractor, nil
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsPro reports whether the role is a professional (anyone who documents
// work on someone else's home).
func (r Role) IsPro() bool {
	return r == RoleContractor || r == RoleRealtor || r == RoleInspector
}

func (r Role) IsHomeowner() bool {
	return r == RoleHomeowner
}

func (r Role) String() string {
	return string(r)
}
