package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tangled.org/arabica.social/sanctions/internal/moderation"
	"tangled.org/arabica.social/sanctions/internal/tracing"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// isUniqueViolation reports a UNIQUE index failure. Primary key collisions
// carry their own code and are not matched.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// ModerationStore implements moderation.Store using SQLite.
type ModerationStore struct {
	db *sql.DB
}

// NewModerationStore creates a ModerationStore backed by the given database.
// The database must already have the schema applied (see Open).
func NewModerationStore(db *sql.DB) *ModerationStore {
	return &ModerationStore{db: db}
}

// Ensure ModerationStore implements the interface at compile time.
var _ moderation.Store = (*ModerationStore)(nil)

// ========== Identities ==========

func (s *ModerationStore) PutIdentity(ctx context.Context, identity moderation.Identity) error {
	if identity.ID == "" || identity.Username == "" {
		return fmt.Errorf("identity requires id and username")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, username, permission_level)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username         = excluded.username,
			permission_level = excluded.permission_level
	`, identity.ID, identity.Username, identity.PermissionLevel)
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

func (s *ModerationStore) GetIdentity(ctx context.Context, id string) (*moderation.Identity, error) {
	return s.getIdentity(ctx, `WHERE id = ?`, id)
}

func (s *ModerationStore) FindIdentityByUsername(ctx context.Context, username string) (*moderation.Identity, error) {
	return s.getIdentity(ctx, `WHERE username = ?`, username)
}

func (s *ModerationStore) getIdentity(ctx context.Context, clause string, arg string) (*moderation.Identity, error) {
	var i moderation.Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, permission_level FROM identities `+clause, arg,
	).Scan(&i.ID, &i.Username, &i.PermissionLevel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// ========== Sanctions ==========

const sanctionColumns = `id, moderator_id, target_id, kind, active, time_ends, reason, report_id, created_at, reversed_at, reversed_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSanction(row rowScanner) (*moderation.Sanction, error) {
	var m moderation.Sanction
	var active int
	var endsStr, createdStr string
	var reversedStr sql.NullString
	if err := row.Scan(&m.ID, &m.ModeratorID, &m.TargetID, &m.Kind, &active, &endsStr,
		&m.Reason, &m.ReportID, &createdStr, &reversedStr, &m.ReversedBy); err != nil {
		return nil, err
	}
	m.Active = active == 1
	m.EffectiveUntil = parseTime(endsStr)
	m.CreatedAt = parseTime(createdStr)
	if reversedStr.Valid {
		t := parseTime(reversedStr.String)
		m.ReversedAt = &t
	}
	return &m, nil
}

func (s *ModerationStore) ActiveSanction(ctx context.Context, targetID string) (*moderation.Sanction, error) {
	m, err := scanSanction(s.db.QueryRowContext(ctx, `
		SELECT `+sanctionColumns+` FROM moderation WHERE target_id = ? AND active = 1
	`, targetID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *ModerationStore) ListSanctions(ctx context.Context, targetID string) ([]moderation.Sanction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sanctionColumns+` FROM moderation WHERE target_id = ? ORDER BY id DESC
	`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sanctions []moderation.Sanction
	for rows.Next() {
		m, err := scanSanction(rows)
		if err != nil {
			return nil, err
		}
		sanctions = append(sanctions, *m)
	}
	return sanctions, rows.Err()
}

func (s *ModerationStore) CountActiveSanctions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM moderation WHERE active = 1`).Scan(&count)
	return count, err
}

// ApplySanction inserts the sanction and its audit entry in one transaction.
// The partial unique index on active rows rejects a concurrent second insert.
func (s *ModerationStore) ApplySanction(ctx context.Context, m moderation.Sanction, entry moderation.AuditEntry) (err error) {
	ctx, span := tracing.StoreSpan(ctx, "sqlite", "apply_sanction")
	defer func() { tracing.EndWithError(span, err); span.End() }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM moderation WHERE target_id = ? AND active = 1`, m.TargetID).Scan(&exists)
	switch {
	case err == nil:
		return moderation.ErrAlreadySanctioned
	case err != sql.ErrNoRows:
		return fmt.Errorf("check active sanction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO moderation (`+sanctionColumns+`)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, NULL, '')
	`, m.ID, m.ModeratorID, m.TargetID, string(m.Kind), formatTime(m.EffectiveUntil),
		m.Reason, m.ReportID, formatTime(m.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return moderation.ErrAlreadySanctioned
		}
		return fmt.Errorf("insert sanction: %w", err)
	}

	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReverseSanction deactivates the target's active sanction and logs entry in
// one transaction.
func (s *ModerationStore) ReverseSanction(ctx context.Context, targetID, reversedBy string, entry moderation.AuditEntry) (_ *moderation.Sanction, err error) {
	ctx, span := tracing.StoreSpan(ctx, "sqlite", "reverse_sanction")
	defer func() { tracing.EndWithError(span, err); span.End() }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	m, err := scanSanction(tx.QueryRowContext(ctx, `
		SELECT `+sanctionColumns+` FROM moderation WHERE target_id = ? AND active = 1
	`, targetID))
	if err == sql.ErrNoRows {
		return nil, moderation.ErrNothingToReverse
	}
	if err != nil {
		return nil, fmt.Errorf("load active sanction: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE moderation SET active = 0, reversed_at = ?, reversed_by = ?
		WHERE id = ? AND active = 1
	`, formatTime(entry.Timestamp), reversedBy, m.ID)
	if err != nil {
		return nil, fmt.Errorf("reverse sanction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, moderation.ErrNothingToReverse
	}

	entry.SanctionID = m.ID
	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	at := parseTime(formatTime(entry.Timestamp))
	m.Active = false
	m.ReversedAt = &at
	m.ReversedBy = reversedBy
	return m, nil
}

// ========== Reports ==========

func (s *ModerationStore) CreateReport(ctx context.Context, report moderation.Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_reports (id, reportee, reporter, note, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, report.ID, report.Reportee, report.Reporter, report.Note, formatTime(report.CreatedAt))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *ModerationStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	var r moderation.Report
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reportee, reporter, note, created_at
		FROM moderation_reports WHERE id = ?
	`, id).Scan(&r.ID, &r.Reportee, &r.Reporter, &r.Note, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAtStr)
	return &r, nil
}

// ========== Audit Log ==========

func insertAuditEntry(ctx context.Context, tx *sql.Tx, entry moderation.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, category, actor_id, target_id, sanction_id, note, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, string(entry.Category), entry.ActorID, entry.TargetID, entry.SanctionID,
		entry.Note, formatTime(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *ModerationStore) ListAuditLog(ctx context.Context, limit int) ([]moderation.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, actor_id, target_id, sanction_id, note, timestamp
		FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []moderation.AuditEntry
	for rows.Next() {
		var e moderation.AuditEntry
		var tsStr string
		if err := rows.Scan(&e.ID, &e.Category, &e.ActorID, &e.TargetID, &e.SanctionID, &e.Note, &tsStr); err != nil {
			continue
		}
		e.Timestamp = parseTime(tsStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
