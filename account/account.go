// Package account holds the identity value types shared by every leaseAuth
// package: the closed role set, account and verification statuses, the
// directory user record and the request-scoped principal.
//
// It has no dependencies so that jwt, refresh, policy and the root engine can
// all import it without cycles.
package account

import (
	"errors"
	"time"
)

// ErrUnknownRole is returned by ParseRole for any value outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// ErrUnknownStatus is returned when a status string is not recognised.
var ErrUnknownStatus = errors.New("unknown status")

// ErrUserNotFound is returned by directories when no user matches.
var ErrUserNotFound = errors.New("user not found")

// Role is the closed set of platform roles.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleLandlord Role = "LANDLORD"
	RoleTenant   Role = "TENANT"
	RoleGuest    Role = "GUEST"
)

// ParseRole maps a wire value onto Role. Matching is exact.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin, RoleLandlord, RoleTenant, RoleGuest:
		return Role(value), nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Authority returns the Spring-style authority string for r.
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusNotActivated Status = "NOT_ACTIVATED"
	StatusBlocked      Status = "BLOCKED"
)

// ParseStatus maps a stored value onto Status.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusActive, StatusNotActivated, StatusBlocked:
		return Status(value), nil
	default:
		return "", ErrUnknownStatus
	}
}

// Verification is the document verification state carried in the access token
// "status" claim.
type Verification string

const (
	NotVerified         Verification = "NOT_VERIFIED"
	PendingVerification Verification = "PENDING_VERIFICATION"
	Verified            Verification = "VERIFIED"
	Rejected            Verification = "REJECTED"
)

// ParseVerification maps a stored value onto Verification.
func ParseVerification(value string) (Verification, error) {
	switch Verification(value) {
	case NotVerified, PendingVerification, Verified, Rejected:
		return Verification(value), nil
	default:
		return "", ErrUnknownStatus
	}
}

// User is the read-only directory record consumed by the engine.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Status       Status
	Verification Verification
	CreatedAt    time.Time
}

// Principal is the identity bound to a single request.
type Principal struct {
	Email       string
	Role        Role
	Authorities []string
}

// NewPrincipal builds a principal for u with authorities derived from its role.
func NewPrincipal(email string, role Role) *Principal {
	return &Principal{
		Email:       email,
		Role:        role,
		Authorities: []string{role.Authority()},
	}
}

// IsAdmin reports whether p carries the ADMIN role. A nil principal is not an admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// HasAuthority reports whether p carries the named authority.
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}
