package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"tangled.org/arabica.social/sanctions/internal/moderation"
	"tangled.org/arabica.social/sanctions/internal/tracing"
)

// ModerationStore provides persistent storage for sanctions, reports and
// the audit log. Identity lookups come from the embedded IdentityStore.
type ModerationStore struct {
	*IdentityStore
	db *bolt.DB
}

var _ moderation.Store = (*ModerationStore)(nil)

func targetIndexKey(targetID, sanctionID string) []byte {
	return []byte(targetID + "\x00" + sanctionID)
}

// auditKey orders entries chronologically; the id breaks ties.
func auditKey(entry moderation.AuditEntry) []byte {
	return []byte(fmt.Sprintf("%020d:%s", entry.Timestamp.UnixNano(), entry.ID))
}

// ApplySanction writes an active sanction plus its audit entry. The active
// check and both writes share one bolt write transaction.
func (s *ModerationStore) ApplySanction(ctx context.Context, sanction moderation.Sanction, entry moderation.AuditEntry) (err error) {
	_, span := tracing.StoreSpan(ctx, "bolt", "apply_sanction")
	defer func() { tracing.EndWithError(span, err); span.End() }()

	return s.db.Update(func(tx *bolt.Tx) error {
		active := tx.Bucket(BucketActiveSanctions)
		if active == nil {
			return fmt.Errorf("bucket not found: %s", BucketActiveSanctions)
		}
		if active.Get([]byte(sanction.TargetID)) != nil {
			return moderation.ErrAlreadySanctioned
		}

		sanction.Active = true
		if err := putSanction(tx, sanction); err != nil {
			return err
		}
		if err := tx.Bucket(BucketSanctionsByTarget).Put(targetIndexKey(sanction.TargetID, sanction.ID), []byte{}); err != nil {
			return err
		}
		if err := active.Put([]byte(sanction.TargetID), []byte(sanction.ID)); err != nil {
			return err
		}
		return putAuditEntry(tx, entry)
	})
}

// ReverseSanction deactivates the target's active sanction and logs entry.
func (s *ModerationStore) ReverseSanction(ctx context.Context, targetID, reversedBy string, entry moderation.AuditEntry) (_ *moderation.Sanction, err error) {
	_, span := tracing.StoreSpan(ctx, "bolt", "reverse_sanction")
	defer func() { tracing.EndWithError(span, err); span.End() }()

	var reversed *moderation.Sanction

	err = s.db.Update(func(tx *bolt.Tx) error {
		active := tx.Bucket(BucketActiveSanctions)
		if active == nil {
			return fmt.Errorf("bucket not found: %s", BucketActiveSanctions)
		}

		id := active.Get([]byte(targetID))
		if id == nil {
			return moderation.ErrNothingToReverse
		}

		sanction, err := getSanction(tx, id)
		if err != nil {
			return err
		}
		if sanction == nil {
			return fmt.Errorf("active sanction %s for %s is missing", id, targetID)
		}

		at := entry.Timestamp
		sanction.Active = false
		sanction.ReversedAt = &at
		sanction.ReversedBy = reversedBy
		if err := putSanction(tx, *sanction); err != nil {
			return err
		}
		if err := active.Delete([]byte(targetID)); err != nil {
			return err
		}

		entry.SanctionID = sanction.ID
		if err := putAuditEntry(tx, entry); err != nil {
			return err
		}

		reversed = sanction
		return nil
	})
	if err != nil {
		return nil, err
	}

	return reversed, nil
}

// ActiveSanction returns the target's active sanction, or nil if there is none.
func (s *ModerationStore) ActiveSanction(ctx context.Context, targetID string) (*moderation.Sanction, error) {
	var sanction *moderation.Sanction

	err := s.db.View(func(tx *bolt.Tx) error {
		active := tx.Bucket(BucketActiveSanctions)
		if active == nil {
			return nil
		}

		id := active.Get([]byte(targetID))
		if id == nil {
			return nil
		}

		var err error
		sanction, err = getSanction(tx, id)
		return err
	})

	return sanction, err
}

// ListSanctions returns every sanction against targetID, newest first.
func (s *ModerationStore) ListSanctions(ctx context.Context, targetID string) ([]moderation.Sanction, error) {
	var sanctions []moderation.Sanction

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(BucketSanctionsByTarget)
		if index == nil {
			return nil
		}

		prefix := []byte(targetID + "\x00")
		cursor := index.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			sanction, err := getSanction(tx, k[len(prefix):])
			if err != nil {
				return err
			}
			if sanction != nil {
				sanctions = append(sanctions, *sanction)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// TIDs sort chronologically, so reversing gives newest first
	for i, j := 0, len(sanctions)-1; i < j; i, j = i+1, j-1 {
		sanctions[i], sanctions[j] = sanctions[j], sanctions[i]
	}

	return sanctions, nil
}

// CountActiveSanctions returns the number of targets with an active sanction.
func (s *ModerationStore) CountActiveSanctions(ctx context.Context) (int, error) {
	var count int

	err := s.db.View(func(tx *bolt.Tx) error {
		active := tx.Bucket(BucketActiveSanctions)
		if active == nil {
			return nil
		}

		count = active.Stats().KeyN
		return nil
	})

	return count, err
}

func putSanction(tx *bolt.Tx, sanction moderation.Sanction) error {
	bucket := tx.Bucket(BucketSanctions)
	if bucket == nil {
		return fmt.Errorf("bucket not found: %s", BucketSanctions)
	}

	data, err := json.Marshal(sanction)
	if err != nil {
		return fmt.Errorf("failed to marshal sanction: %w", err)
	}

	return bucket.Put([]byte(sanction.ID), data)
}

func getSanction(tx *bolt.Tx, id []byte) (*moderation.Sanction, error) {
	bucket := tx.Bucket(BucketSanctions)
	if bucket == nil {
		return nil, nil
	}

	data := bucket.Get(id)
	if data == nil {
		return nil, nil
	}

	sanction := &moderation.Sanction{}
	if err := json.Unmarshal(data, sanction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sanction %s: %w", id, err)
	}
	return sanction, nil
}

func putAuditEntry(tx *bolt.Tx, entry moderation.AuditEntry) error {
	bucket := tx.Bucket(BucketModerationAuditLog)
	if bucket == nil {
		return fmt.Errorf("bucket not found: %s", BucketModerationAuditLog)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	return bucket.Put(auditKey(entry), data)
}

// CreateReport stores a new report.
func (s *ModerationStore) CreateReport(ctx context.Context, report moderation.Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketModerationReports)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketModerationReports)
		}

		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}

		return bucket.Put([]byte(report.ID), data)
	})
}

// GetReport retrieves a report by ID, or nil if unknown.
func (s *ModerationStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	var report *moderation.Report

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketModerationReports)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return nil
		}

		report = &moderation.Report{}
		return json.Unmarshal(data, report)
	})

	return report, err
}

// ListAuditLog returns the most recent audit log entries.
// Entries are returned in reverse chronological order (newest first).
func (s *ModerationStore) ListAuditLog(ctx context.Context, limit int) ([]moderation.AuditEntry, error) {
	var entries []moderation.AuditEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketModerationAuditLog)
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil && len(entries) < limit; k, v = cursor.Prev() {
			var entry moderation.AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue // Skip malformed entries
			}
			entries = append(entries, entry)
		}

		return nil
	})

	return entries, err
}
