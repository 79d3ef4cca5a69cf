// Package boltstore provides persistent storage using BoltDB (bbolt).
// It implements moderation.Store; every multi-step write runs inside a
// single bolt Update transaction, which bolt serializes.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketIdentities stores identities keyed by id
	BucketIdentities = []byte("identities")

	// BucketIdentitiesByUsername indexes identity ids by lowercased username
	BucketIdentitiesByUsername = []byte("identities_by_username")

	// BucketSanctions stores sanction edges keyed by sanction TID
	BucketSanctions = []byte("moderation_sanctions")

	// BucketSanctionsByTarget indexes sanctions: {target_id \x00 sanction_tid} -> {}
	BucketSanctionsByTarget = []byte("moderation_sanctions_by_target")

	// BucketActiveSanctions maps a target id to its single active sanction TID
	BucketActiveSanctions = []byte("moderation_active_sanctions")

	// BucketModerationReports stores user reports
	BucketModerationReports = []byte("moderation_reports")

	// BucketModerationAuditLog stores the audit trail keyed by
	// {zero-padded unix nanos ":" entry id}, so cursor order is time order
	BucketModerationAuditLog = []byte("moderation_audit_log")
)

// Store wraps a BoltDB database and provides access to specialized stores.
type Store struct {
	db *bolt.DB
}

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "sanctions.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// Open creates or opens a BoltDB database at the specified path.
// It creates all necessary buckets if they don't exist.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "sanctions.db"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	// Ensure parent directory exists
	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			BucketIdentities,
			BucketIdentitiesByUsername,
			BucketSanctions,
			BucketSanctionsByTarget,
			BucketActiveSanctions,
			BucketModerationReports,
			BucketModerationAuditLog,
		}

		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// IdentityStore returns the identity registry backed by this database.
func (s *Store) IdentityStore() *IdentityStore {
	return &IdentityStore{db: s.db}
}

// ModerationStore returns a moderation store backed by this database.
func (s *Store) ModerationStore() *ModerationStore {
	return &ModerationStore{IdentityStore: s.IdentityStore(), db: s.db}
}
