package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"

	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// IdentityStore is a local registry of platform identities and their
// permission levels. Usernames are matched case-insensitively.
type IdentityStore struct {
	db *bolt.DB
}

func usernameKey(username string) []byte {
	return []byte(strings.ToLower(username))
}

// PutIdentity creates or replaces an identity, keeping the username index in step.
func (s *IdentityStore) PutIdentity(ctx context.Context, identity moderation.Identity) error {
	if identity.ID == "" || identity.Username == "" {
		return fmt.Errorf("identity requires id and username")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketIdentities)
		byName := tx.Bucket(BucketIdentitiesByUsername)
		if bucket == nil || byName == nil {
			return fmt.Errorf("bucket not found: %s", BucketIdentities)
		}

		if owner := byName.Get(usernameKey(identity.Username)); owner != nil && string(owner) != identity.ID {
			return fmt.Errorf("username %q already belongs to %s", identity.Username, owner)
		}

		// Drop the old username mapping on rename.
		if existing := bucket.Get([]byte(identity.ID)); existing != nil {
			var old moderation.Identity
			if err := json.Unmarshal(existing, &old); err == nil && !strings.EqualFold(old.Username, identity.Username) {
				if err := byName.Delete(usernameKey(old.Username)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(identity)
		if err != nil {
			return fmt.Errorf("failed to marshal identity: %w", err)
		}
		if err := bucket.Put([]byte(identity.ID), data); err != nil {
			return err
		}
		return byName.Put(usernameKey(identity.Username), []byte(identity.ID))
	})
}

// GetIdentity returns the identity with the given id, or nil if unknown.
func (s *IdentityStore) GetIdentity(ctx context.Context, id string) (*moderation.Identity, error) {
	var identity *moderation.Identity

	err := s.db.View(func(tx *bolt.Tx) error {
		identity = getIdentity(tx, []byte(id))
		return nil
	})

	return identity, err
}

// FindIdentityByUsername returns the identity registered under username, or nil.
func (s *IdentityStore) FindIdentityByUsername(ctx context.Context, username string) (*moderation.Identity, error) {
	var identity *moderation.Identity

	err := s.db.View(func(tx *bolt.Tx) error {
		byName := tx.Bucket(BucketIdentitiesByUsername)
		if byName == nil {
			return nil
		}

		id := byName.Get(usernameKey(username))
		if id == nil {
			return nil
		}
		identity = getIdentity(tx, id)
		return nil
	})

	return identity, err
}

func getIdentity(tx *bolt.Tx, id []byte) *moderation.Identity {
	bucket := tx.Bucket(BucketIdentities)
	if bucket == nil {
		return nil
	}

	data := bucket.Get(id)
	if data == nil {
		return nil
	}

	var identity moderation.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil
	}
	return &identity
}

// Count returns the number of registered identities.
func (s *IdentityStore) Count() int {
	var count int

	s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketIdentities)
		if bucket == nil {
			return nil
		}

		count = bucket.Stats().KeyN
		return nil
	})

	return count
}
