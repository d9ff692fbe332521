package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
)

var (
	// ErrAccountNotVerified is wrapped by ErrAccessDenied when document
	// verification is incomplete.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrNotOwner is wrapped by ErrAccessDenied when a non-admin acts on
	// another user's resource.
	ErrNotOwner = errors.New("not resource owner")
)

// IsOwnerOrAdmin reports whether p is an ADMIN or its email equals
// ownerEmail. Email comparison is exact. A nil principal is never allowed.
func IsOwnerOrAdmin(p *account.Principal, ownerEmail string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return ownerEmail != "" && p.Email == ownerEmail
}

// RequireOwnerOrAdmin is the error-returning form of IsOwnerOrAdmin.
func RequireOwnerOrAdmin(p *account.Principal, ownerEmail string) error {
	if p == nil {
		return leaseAuth.ErrUnauthenticated
	}
	if !IsOwnerOrAdmin(p, ownerEmail) {
		return fmt.Errorf("%w: %w", leaseAuth.ErrAccessDenied, ErrNotOwner)
	}
	return nil
}

// RequireVerifiedActive requires u to be VERIFIED and ACTIVE. Verification is
// checked first.
func RequireVerifiedActive(u account.User) error {
	if u.Verification != account.Verified {
		return fmt.Errorf("%w: %w", leaseAuth.ErrAccessDenied, ErrAccountNotVerified)
	}
	if u.Status != account.StatusActive {
		return fmt.Errorf("%w: %w", leaseAuth.ErrAccessDenied, leaseAuth.ErrAccountNotActive)
	}
	return nil
}

// RequireRole admits p when it holds any of roles.
func RequireRole(p *account.Principal, roles ...account.Role) error {
	if p == nil {
		return leaseAuth.ErrUnauthenticated
	}
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return fmt.Errorf("%w: role %s not in [%s]", leaseAuth.ErrAccessDenied, p.Role, strings.Join(names, ","))
}

// CanCreateListing decides whether p may create a listing owned by
// ownerEmail. caller is p's own directory record. Admins may create listings
// for anyone regardless of their own verification; everyone else must own
// the listing and be verified and active.
func CanCreateListing(p *account.Principal, caller account.User, ownerEmail string) error {
	if err := RequireOwnerOrAdmin(p, ownerEmail); err != nil {
		return err
	}
	if p.IsAdmin() {
		return nil
	}
	return RequireVerifiedActive(caller)
}

// Authorizer is the context-aware form of the helpers above. [Native] and
// rego.Evaluator implement it.
type Authorizer interface {
	RequireOwnerOrAdmin(ctx context.Context, p *account.Principal, ownerEmail string) error
	CanCreateListing(ctx context.Context, p *account.Principal, caller account.User, ownerEmail string) error
}

// Native evaluates the Go rules.
type Native struct{}

var _ Authorizer = Native{}

func (Native) RequireOwnerOrAdmin(_ context.Context, p *account.Principal, ownerEmail string) error {
	return RequireOwnerOrAdmin(p, ownerEmail)
}

func (Native) CanCreateListing(_ context.Context, p *account.Principal, caller account.User, ownerEmail string) error {
	return CanCreateListing(p, caller, ownerEmail)
}
