package moderation

import (
	"context"
)

// Store defines the persistence interface for moderation data.
// Implementations must be safe for concurrent use.
type Store interface {
	// Identities
	FindIdentityByUsername(ctx context.Context, username string) (*Identity, error)
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	PutIdentity(ctx context.Context, identity Identity) error

	// Sanctions
	ActiveSanction(ctx context.Context, targetID string) (*Sanction, error)
	ListSanctions(ctx context.Context, targetID string) ([]Sanction, error)
	CountActiveSanctions(ctx context.Context) (int, error)

	// ApplySanction inserts an active sanction and its audit entry in one
	// transaction. It must fail with ErrAlreadySanctioned, writing nothing,
	// if the target already has an active sanction at commit time.
	ApplySanction(ctx context.Context, sanction Sanction, entry AuditEntry) error

	// ReverseSanction deactivates the target's active sanction and appends
	// the audit entry in one transaction. It must fail with
	// ErrNothingToReverse, writing nothing, if no active sanction exists.
	ReverseSanction(ctx context.Context, targetID, reversedBy string, entry AuditEntry) (*Sanction, error)

	// Reports
	CreateReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, id string) (*Report, error)

	// Audit log
	ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error)
}
