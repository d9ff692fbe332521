// Package rego evaluates the leaseAuth authorization rules with Open Policy
// Agent. Decisions and error kinds match package policy.
package rego

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
	"github.com/leasehub/leaseAuth/policy"
)

//go:embed authz.rego
var defaultModule string

const (
	ownershipQuery     = "data.leaseauth.authz.ownership"
	createListingQuery = "data.leaseauth.authz.create_listing"
)

// ErrEvaluation marks a policy that failed to produce a decision. It is
// always returned together with ErrAccessDenied.
var ErrEvaluation = errors.New("policy evaluation failed")

// Evaluator holds prepared queries over a compiled module. It is safe for
// concurrent use.
type Evaluator struct {
	ownership     rego.PreparedEvalQuery
	createListing rego.PreparedEvalQuery
}

// New compiles the embedded policy.
func New(ctx context.Context) (*Evaluator, error) {
	return NewWithModule(ctx, defaultModule)
}

// NewWithModule compiles src, which must define package leaseauth.authz with
// the ownership and create_listing rules.
func NewWithModule(ctx context.Context, src string) (*Evaluator, error) {
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": src})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}

	ownership, err := rego.New(
		rego.Query(ownershipQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare ownership query: %w", err)
	}

	createListing, err := rego.New(
		rego.Query(createListingQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare create_listing query: %w", err)
	}

	return &Evaluator{ownership: ownership, createListing: createListing}, nil
}

// IsOwnerOrAdmin mirrors [policy.IsOwnerOrAdmin]. Evaluation errors deny.
func (e *Evaluator) IsOwnerOrAdmin(ctx context.Context, p *account.Principal, ownerEmail string) bool {
	return e.RequireOwnerOrAdmin(ctx, p, ownerEmail) == nil
}

// RequireOwnerOrAdmin mirrors [policy.RequireOwnerOrAdmin].
func (e *Evaluator) RequireOwnerOrAdmin(ctx context.Context, p *account.Principal, ownerEmail string) error {
	reason, err := decide(ctx, e.ownership, buildInput(p, account.User{}, ownerEmail))
	if err != nil {
		return err
	}
	return reasonError(reason)
}

// CanCreateListing mirrors [policy.CanCreateListing].
func (e *Evaluator) CanCreateListing(ctx context.Context, p *account.Principal, caller account.User, ownerEmail string) error {
	reason, err := decide(ctx, e.createListing, buildInput(p, caller, ownerEmail))
	if err != nil {
		return err
	}
	return reasonError(reason)
}

func buildInput(p *account.Principal, u account.User, ownerEmail string) map[string]interface{} {
	principal := map[string]interface{}{}
	if p != nil {
		principal["email"] = p.Email
		principal["role"] = string(p.Role)
	}
	return map[string]interface{}{
		"authenticated": p != nil,
		"principal":     principal,
		"owner_email":   ownerEmail,
		"user": map[string]interface{}{
			"verification": string(u.Verification),
			"status":       string(u.Status),
		},
	}
}

func decide(ctx context.Context, q rego.PreparedEvalQuery, input map[string]interface{}) (string, error) {
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", leaseAuth.ErrAccessDenied, ErrEvaluation, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", fmt.Errorf("%w: %w: undefined decision", leaseAuth.ErrAccessDenied, ErrEvaluation)
	}
	reason, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %w: decision is %T", leaseAuth.ErrAccessDenied, ErrEvaluation, rs[0].Expressions[0].Value)
	}
	return reason, nil
}

func reasonError(reason string) error {
	switch reason {
	case "allow":
		return nil
	case "unauthenticated":
		return leaseAuth.ErrUnauthenticated
	case "not_owner":
		return fmt.Errorf("%w: %w", leaseAuth.ErrAccessDenied, policy.ErrNotOwner)
	case "not_verified":
		return fmt.Errorf("%w: %w", leaseAuth.ErrAccessDenied, policy.ErrAccountNotVerified)
	case "not_active":
		return fmt.Errorf("%w: %w", leaseAuth.ErrAccessDenied, leaseAuth.ErrAccountNotActive)
	default:
		return fmt.Errorf("%w: %w: unknown decision %q", leaseAuth.ErrAccessDenied, ErrEvaluation, reason)
	}
}

var _ policy.Authorizer = (*Evaluator)(nil)
