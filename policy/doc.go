// Package policy answers authorization questions for a bound principal.
//
// The helpers distinguish an anonymous caller ([leaseAuth.ErrUnauthenticated],
// mapped to 401) from a known caller who lacks the right
// ([leaseAuth.ErrAccessDenied], mapped to 403). The rego subpackage evaluates
// the same rules through OPA for deployments that want them editable.
package policy
