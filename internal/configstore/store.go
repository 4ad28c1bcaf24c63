// Package configstore implements Carbon's durable configuration map: an
// ordered key→bytes store persisting CacheConfig and user/role records to
// disk, backed by go.etcd.io/bbolt. One bucket per entity kind plus
// by-name/by-username secondary index buckets. Every mutation commits
// inside a single db.Update transaction, so bbolt's fsync-on-commit
// guarantees the write is flushed before the call returns.
package configstore

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/carbonlabs/carbon/internal/apperr"
)

var (
	bucketCaches       = []byte("caches")
	bucketUsers        = []byte("users")
	bucketRoles        = []byte("roles")
	bucketUsersByName  = []byte("users_by_username")
	bucketRolesByName  = []byte("roles_by_name")
)

// ConfigStore is Carbon's durable configuration map.
type ConfigStore struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures every
// bucket this package uses exists.
func Open(path string) (*ConfigStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open config store: %v", apperr.ErrStorage, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCaches, bucketUsers, bucketRoles, bucketUsersByName, bucketRolesByName} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init buckets: %v", apperr.ErrStorage, err)
	}
	return &ConfigStore{db: db}, nil
}

// Close releases the underlying file handle.
func (c *ConfigStore) Close() error {
	return c.db.Close()
}

// PutCache persists (or overwrites) one named cache's CacheConfig, flushed
// before returning.
func (c *ConfigStore) PutCache(name string, config any) error {
	return c.put(bucketCaches, name, config)
}

// GetCache fetches the raw JSON for name, or apperr.ErrNotFound.
func (c *ConfigStore) GetCache(name string) ([]byte, error) {
	return c.get(bucketCaches, name)
}

// DeleteCache removes name's persisted config.
func (c *ConfigStore) DeleteCache(name string) error {
	return c.delete(bucketCaches, name)
}

// IterCaches calls fn(name, rawJSON) for every persisted cache, in bbolt's
// ordered-key order. fn may return an error to abort the iteration.
func (c *ConfigStore) IterCaches(fn func(name string, raw []byte) error) error {
	return c.iter(bucketCaches, fn)
}

// PutUser persists a user record plus its by-username index entry.
func (c *ConfigStore) PutUser(id, username string, record any) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		raw, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrSerialization, err)
		}
		if err := tx.Bucket(bucketUsers).Put([]byte(id), raw); err != nil {
			return err
		}
		return tx.Bucket(bucketUsersByName).Put([]byte(username), []byte(id))
	})
}

// GetUserIDByUsername resolves the by-username secondary index.
func (c *ConfigStore) GetUserIDByUsername(username string) ([]byte, error) {
	return c.get(bucketUsersByName, username)
}

// GetUser fetches a user record by id.
func (c *ConfigStore) GetUser(id string) ([]byte, error) {
	return c.get(bucketUsers, id)
}

// DeleteUser removes a user record and its by-username index entry.
func (c *ConfigStore) DeleteUser(id, username string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketUsers).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketUsersByName).Delete([]byte(username))
	})
}

// IterUsers calls fn(id, rawJSON) for every persisted user.
func (c *ConfigStore) IterUsers(fn func(id string, raw []byte) error) error {
	return c.iter(bucketUsers, fn)
}

// PutRole persists a role record, keyed by role name.
func (c *ConfigStore) PutRole(name string, record any) error {
	return c.put(bucketRoles, name, record)
}

// GetRole fetches a role record by name.
func (c *ConfigStore) GetRole(name string) ([]byte, error) {
	return c.get(bucketRoles, name)
}

// DeleteRole removes a role record.
func (c *ConfigStore) DeleteRole(name string) error {
	return c.delete(bucketRoles, name)
}

// IterRoles calls fn(name, rawJSON) for every persisted role.
func (c *ConfigStore) IterRoles(fn func(name string, raw []byte) error) error {
	return c.iter(bucketRoles, fn)
}

func (c *ConfigStore) put(bucket []byte, key string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrSerialization, err)
	}
	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (c *ConfigStore) get(bucket []byte, key string) ([]byte, error) {
	var raw []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return apperr.ErrNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *ConfigStore) delete(bucket []byte, key string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (c *ConfigStore) iter(bucket []byte, fn func(key string, raw []byte) error) error {
	return c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			return fn(string(k), append([]byte(nil), v...))
		})
	})
}
