package moderation

import "time"

// SanctionKind is the disciplinary kind recorded on a sanction edge.
type SanctionKind string

const (
	SanctionWarning     SanctionKind = "Warning"
	SanctionBan         SanctionKind = "Ban"
	SanctionTermination SanctionKind = "Termination"
)

// Identity is a platform user as seen by the moderation core.
// Identities are owned by the account system; this package only reads them.
type Identity struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	PermissionLevel int    `json:"permission_level"`
}

// Sanction is a moderation edge from a moderator to a target user.
// Kind, CreatedAt and EffectiveUntil never change after creation; only Active
// is flipped when the sanction is reversed.
type Sanction struct {
	ID             string       `json:"id"`           // TID
	ModeratorID    string       `json:"moderator_id"` // in
	TargetID       string       `json:"target_id"`    // out
	Kind           SanctionKind `json:"kind"`
	Active         bool         `json:"active"`
	EffectiveUntil time.Time    `json:"effective_until"`
	Reason         string       `json:"reason"`
	ReportID       string       `json:"report_id,omitempty"` // originating report, if any
	CreatedAt      time.Time    `json:"created_at"`
	ReversedAt     *time.Time   `json:"reversed_at,omitempty"`
	ReversedBy     string       `json:"reversed_by,omitempty"`
}

// AuditCategory groups audit log entries for the audit viewer.
type AuditCategory string

const (
	AuditCategoryAccount        AuditCategory = "Account"
	AuditCategoryAdministration AuditCategory = "Administration"
	AuditCategoryEconomy        AuditCategory = "Economy"
	AuditCategoryModeration     AuditCategory = "Moderation"
)

// AuditEntry is an append-only record of a privileged action.
type AuditEntry struct {
	ID         string        `json:"id"`
	Category   AuditCategory `json:"category"`
	ActorID    string        `json:"actor_id"`
	TargetID   string        `json:"target_id,omitempty"`
	SanctionID string        `json:"sanction_id,omitempty"`
	Note       string        `json:"note"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Report is a user report, read once to pre-populate a moderation request.
type Report struct {
	ID        string    `json:"id"`
	Reportee  string    `json:"reportee"` // username of the reported user
	Reporter  string    `json:"reporter,omitempty"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
