package moderation

import (
	"context"
	"fmt"
)

// IdentityReader looks identities up by username.
type IdentityReader interface {
	FindIdentityByUsername(ctx context.Context, username string) (*Identity, error)
}

// EligibilityChecker decides whether a username may be moderated by an actor.
type EligibilityChecker struct {
	identities IdentityReader
	staffLevel int
}

// NewEligibilityChecker returns a checker that protects every identity whose
// permission level is above staffLevel.
func NewEligibilityChecker(identities IdentityReader, staffLevel int) *EligibilityChecker {
	return &EligibilityChecker{identities: identities, staffLevel: staffLevel}
}

// Resolve returns the identity behind username, or ErrTargetNotFound.
func (c *EligibilityChecker) Resolve(ctx context.Context, username string) (*Identity, error) {
	identity, err := c.identities.FindIdentityByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolve target %q: %w", username, err)
	}
	if identity == nil {
		return nil, ErrTargetNotFound
	}
	return identity, nil
}

// Check resolves username and rejects self and staff targets, in that order. Rejections
// are returned as ValidationErrors scoped to the username field.
func (c *EligibilityChecker) Check(ctx context.Context, actor Identity, username string) (*Identity, error) {
	target, err := c.Resolve(ctx, username)
	if err == ErrTargetNotFound {
		return nil, fieldError(FieldUsername, ErrTargetNotFound, "User does not exist")
	}
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, fieldError(FieldUsername, ErrSelfTarget, "You cannot moderate yourself")
	}
	if target.PermissionLevel > c.staffLevel {
		return nil, fieldError(FieldUsername, ErrProtectedTarget, "You cannot moderate staff members")
	}
	return target, nil
}
