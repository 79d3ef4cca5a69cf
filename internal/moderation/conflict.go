package moderation

import (
	"context"
	"fmt"
)

// SanctionReader reads the active sanction of a target.
type SanctionReader interface {
	ActiveSanction(ctx context.Context, targetID string) (*Sanction, error)
}

// ConflictGuard rejects actions that would overlap an active sanction, and
// reversals with nothing to reverse.
//
// The guard is a fast pre-check so rejections surface before the rate limiter
// is charged. The store repeats the same check inside the commit transaction.
type ConflictGuard struct {
	sanctions SanctionReader
}

func NewConflictGuard(sanctions SanctionReader) *ConflictGuard {
	return &ConflictGuard{sanctions: sanctions}
}

// HasActiveSanction reports whether targetID currently has an active sanction.
func (g *ConflictGuard) HasActiveSanction(ctx context.Context, targetID string) (bool, error) {
	s, err := g.sanctions.ActiveSanction(ctx, targetID)
	if err != nil {
		return false, fmt.Errorf("read active sanction: %w", err)
	}
	return s != nil, nil
}

// Check returns a field-scoped ValidationError when a conflicts with the
// target's current sanction state.
func (g *ConflictGuard) Check(ctx context.Context, a Action, targetID string) error {
	active, err := g.HasActiveSanction(ctx, targetID)
	if err != nil {
		return err
	}
	return conflictError(a, active)
}

func conflictError(a Action, active bool) error {
	if IsReversal(a) {
		if !active {
			return nothingToReverse()
		}
		return nil
	}
	if active {
		return alreadySanctioned()
	}
	return nil
}

func alreadySanctioned() *ValidationError {
	return fieldError(FieldUsername, ErrAlreadySanctioned, "User has already been moderated")
}

func nothingToReverse() *ValidationError {
	return fieldError(FieldAction, ErrNothingToReverse, "You cannot unban a user that has not been moderated yet")
}
