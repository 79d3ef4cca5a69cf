package database

import (
	"context"

	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// MockStore is a mock implementation of the Store interface for testing.
// Uses function fields to allow tests to inject custom behavior.
type MockStore struct {
	// Identities
	FindIdentityByUsernameFunc func(ctx context.Context, username string) (*moderation.Identity, error)
	GetIdentityFunc            func(ctx context.Context, id string) (*moderation.Identity, error)
	PutIdentityFunc            func(ctx context.Context, identity moderation.Identity) error

	// Sanctions
	ActiveSanctionFunc       func(ctx context.Context, targetID string) (*moderation.Sanction, error)
	ListSanctionsFunc        func(ctx context.Context, targetID string) ([]moderation.Sanction, error)
	CountActiveSanctionsFunc func(ctx context.Context) (int, error)
	ApplySanctionFunc        func(ctx context.Context, sanction moderation.Sanction, entry moderation.AuditEntry) error
	ReverseSanctionFunc      func(ctx context.Context, targetID, reversedBy string, entry moderation.AuditEntry) (*moderation.Sanction, error)

	// Reports and audit
	CreateReportFunc func(ctx context.Context, report moderation.Report) error
	GetReportFunc    func(ctx context.Context, id string) (*moderation.Report, error)
	ListAuditLogFunc func(ctx context.Context, limit int) ([]moderation.AuditEntry, error)

	CloseFunc func() error
}

var _ Store = (*MockStore)(nil)

// FindIdentityByUsername calls the mock function or returns nil if not set
func (m *MockStore) FindIdentityByUsername(ctx context.Context, username string) (*moderation.Identity, error) {
	if m.FindIdentityByUsernameFunc != nil {
		return m.FindIdentityByUsernameFunc(ctx, username)
	}
	return nil, nil
}

// GetIdentity calls the mock function or returns nil if not set
func (m *MockStore) GetIdentity(ctx context.Context, id string) (*moderation.Identity, error) {
	if m.GetIdentityFunc != nil {
		return m.GetIdentityFunc(ctx, id)
	}
	return nil, nil
}

// PutIdentity calls the mock function or returns nil if not set
func (m *MockStore) PutIdentity(ctx context.Context, identity moderation.Identity) error {
	if m.PutIdentityFunc != nil {
		return m.PutIdentityFunc(ctx, identity)
	}
	return nil
}

// ActiveSanction calls the mock function or returns nil if not set
func (m *MockStore) ActiveSanction(ctx context.Context, targetID string) (*moderation.Sanction, error) {
	if m.ActiveSanctionFunc != nil {
		return m.ActiveSanctionFunc(ctx, targetID)
	}
	return nil, nil
}

// ListSanctions calls the mock function or returns nil if not set
func (m *MockStore) ListSanctions(ctx context.Context, targetID string) ([]moderation.Sanction, error) {
	if m.ListSanctionsFunc != nil {
		return m.ListSanctionsFunc(ctx, targetID)
	}
	return nil, nil
}

// CountActiveSanctions calls the mock function or returns 0 if not set
func (m *MockStore) CountActiveSanctions(ctx context.Context) (int, error) {
	if m.CountActiveSanctionsFunc != nil {
		return m.CountActiveSanctionsFunc(ctx)
	}
	return 0, nil
}

// ApplySanction calls the mock function or returns nil if not set
func (m *MockStore) ApplySanction(ctx context.Context, sanction moderation.Sanction, entry moderation.AuditEntry) error {
	if m.ApplySanctionFunc != nil {
		return m.ApplySanctionFunc(ctx, sanction, entry)
	}
	return nil
}

// ReverseSanction calls the mock function or returns nil if not set
func (m *MockStore) ReverseSanction(ctx context.Context, targetID, reversedBy string, entry moderation.AuditEntry) (*moderation.Sanction, error) {
	if m.ReverseSanctionFunc != nil {
		return m.ReverseSanctionFunc(ctx, targetID, reversedBy, entry)
	}
	return nil, nil
}

// CreateReport calls the mock function or returns nil if not set
func (m *MockStore) CreateReport(ctx context.Context, report moderation.Report) error {
	if m.CreateReportFunc != nil {
		return m.CreateReportFunc(ctx, report)
	}
	return nil
}

// GetReport calls the mock function or returns nil if not set
func (m *MockStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	if m.GetReportFunc != nil {
		return m.GetReportFunc(ctx, id)
	}
	return nil, nil
}

// ListAuditLog calls the mock function or returns nil if not set
func (m *MockStore) ListAuditLog(ctx context.Context, limit int) ([]moderation.AuditEntry, error) {
	if m.ListAuditLogFunc != nil {
		return m.ListAuditLogFunc(ctx, limit)
	}
	return nil, nil
}

// Close calls the mock function or returns nil if not set
func (m *MockStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
