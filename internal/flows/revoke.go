package flows

import (
	"context"
	"errors"
)

// RevokeDeps captures the retention revoke hook dependencies.
type RevokeDeps struct {
	DeleteRefresh func(ctx context.Context, userID string) error
}

// RunRevokeUser removes every refresh credential of userID. It runs with the
// caller's context so a transaction carried there covers the delete.
func RunRevokeUser(ctx context.Context, userID string, deps RevokeDeps) error {
	if deps.DeleteRefresh == nil {
		return errors.New("revoke flow not wired")
	}
	if userID == "" {
		return errors.New("revoke requires a user id")
	}
	return deps.DeleteRefresh(ctx, userID)
}
