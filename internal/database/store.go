package database

import (
	"database/sql"
	"fmt"

	"tangled.org/arabica.social/sanctions/internal/database/boltstore"
	"tangled.org/arabica.social/sanctions/internal/database/sqlitestore"
	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// Supported storage drivers
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Store is a moderation.Store that owns its database handle.
// This abstraction allows swapping SQLite for BoltDB without touching callers.
type Store interface {
	moderation.Store

	// Close the database connection
	Close() error
}

// Options selects and configures a storage backend.
type Options struct {
	Driver string
	Path   string
}

// Open opens the backend named by opts.Driver. An empty driver means SQLite.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		path := opts.Path
		if path == "" {
			path = "sanctions.sqlite"
		}
		db, err := sqlitestore.Open(path)
		if err != nil {
			return nil, err
		}
		return &sqliteStore{ModerationStore: sqlitestore.NewModerationStore(db), db: db}, nil

	case DriverBolt:
		bolt, err := boltstore.Open(boltstore.Options{Path: opts.Path})
		if err != nil {
			return nil, err
		}
		return &boltStore{ModerationStore: bolt.ModerationStore(), store: bolt}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q (want %s or %s)", opts.Driver, DriverSQLite, DriverBolt)
	}
}

type sqliteStore struct {
	*sqlitestore.ModerationStore
	db *sql.DB
}

func (s *sqliteStore) Close() error { return s.db.Close() }

type boltStore struct {
	*boltstore.ModerationStore
	store *boltstore.Store
}

func (s *boltStore) Close() error { return s.store.Close() }
