// Package engine adapts go.etcd.io/bbolt into the MDS's Storage Engine
// Adapter (spec §4.1): one database directory, one top-level bucket per
// namespace ("column family"), atomic batched writes with an optional
// durability barrier, order-preserving multiget, and drop-then-recreate
// semantics for clear.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/karrick/godirwalk"
	bolt "go.etcd.io/bbolt"

	"github.com/openvstorage/volumedriver-sub006/cmn"
)

// DefaultFamily is the reserved bucket name the adapter itself never treats
// as an addressable namespace (spec §3).
const DefaultFamily = "default"

// Options mirrors the subset of node-config storage knobs that have a real
// bbolt correspondence (spec §6 rocksdb_* keys, SPEC_FULL §6).
type Options struct {
	// NoSync, when true, lets bbolt skip fsync on every commit; BatchWrite
	// still forces a sync for that one commit when barrier=true regardless.
	NoSync bool
	// Timeout bounds how long Open waits for the bbolt file lock.
	Timeout int64 // seconds, 0 = no timeout
}

// Record is a single put (Tombstone=false) or delete (Tombstone=true).
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Engine owns one bbolt database directory.
type Engine struct {
	dir  string
	opts Options
	db   *bolt.DB
}

// Open opens (or creates) the database at dir. If dir exists and is
// non-empty it must already hold a valid bbolt file; otherwise a fresh one
// is created. godirwalk.Walk gives a cheap, allocation-light probe for "does
// anything live under dir" without a full ReadDir+stat pass.
func Open(dir string, opts Options) (*Engine, error) {
	nonEmpty := false
	if _, err := os.Stat(dir); err == nil {
		walkErr := godirwalk.Walk(dir, &godirwalk.Options{
			Callback: func(_ string, de *godirwalk.Dirent) error {
				if !de.IsDir() {
					nonEmpty = true
					return filepath.SkipDir
				}
				return nil
			},
			Unsorted: true,
		})
		if walkErr != nil && !nonEmpty {
			return nil, cmn.Storage(fmt.Sprintf("probing database directory %q", dir), walkErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, cmn.Storage(fmt.Sprintf("stat database directory %q", dir), err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cmn.Storage(fmt.Sprintf("creating database directory %q", dir), err)
	}

	boltOpts := &bolt.Options{}
	if opts.Timeout > 0 {
		boltOpts.Timeout = time.Duration(opts.Timeout) * time.Second
	}
	dbPath := filepath.Join(dir, "mds.db")
	if nonEmpty {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, cmn.Storage(fmt.Sprintf("database directory %q is non-empty but holds no database", dir), err)
		}
	}
	db, err := bolt.Open(dbPath, 0o600, boltOpts)
	if err != nil {
		return nil, cmn.Storage(fmt.Sprintf("opening bbolt database %q (existing=%v)", dbPath, nonEmpty), err)
	}
	db.NoSync = opts.NoSync

	return &Engine{dir: dir, opts: opts, db: db}, nil
}

func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return cmn.Storage("closing storage engine", err)
	}
	return nil
}

// CreateFamily creates the named bucket if it doesn't already exist.
func (e *Engine) CreateFamily(name string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return cmn.Storage(fmt.Sprintf("creating family %q", name), err)
	}
	return nil
}

// DropFamily deletes the named bucket. Dropping an absent bucket is a no-op,
// matching bbolt's own idempotent DeleteBucket(name) == ErrBucketNotFound
// being swallowed here (callers of Database.Drop only call this once they
// know the family exists; direct callers shouldn't rely on the distinction).
func (e *Engine) DropFamily(name string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(name))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return cmn.Storage(fmt.Sprintf("dropping family %q", name), err)
	}
	return nil
}

// ListFamilies enumerates every top-level bucket, skipping DefaultFamily.
func (e *Engine) ListFamilies() ([]string, error) {
	var names []string
	err := e.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			if n != DefaultFamily {
				names = append(names, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, cmn.Storage("listing families", err)
	}
	return names, nil
}

// BatchWrite applies records atomically. When barrier is true the adapter
// forces this one commit to fsync even if the engine is otherwise running
// with NoSync=true, so that "everything written before the barrier is
// durable" (spec §4.1) holds regardless of the ambient throughput setting.
func (e *Engine) BatchWrite(family string, records []Record, barrier bool) error {
	prevNoSync := e.db.NoSync
	if barrier {
		e.db.NoSync = false
	}
	defer func() { e.db.NoSync = prevNoSync }()

	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return fmt.Errorf("family %q does not exist", family)
		}
		for _, r := range records {
			if r.Tombstone {
				if err := b.Delete(r.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(r.Key, r.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cmn.Storage(fmt.Sprintf("batch write to family %q (%d records, barrier=%v)", family, len(records), barrier), err)
	}
	return nil
}

// MultiGet preserves the order of keys; an absent key yields a nil slice at
// that position.
func (e *Engine) MultiGet(family string, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return fmt.Errorf("family %q does not exist", family)
		}
		for i, k := range keys {
			if v := b.Get(k); v != nil {
				cp := make([]byte, len(v))
				copy(cp, v)
				out[i] = cp
			}
		}
		return nil
	})
	if err != nil {
		return nil, cmn.Storage(fmt.Sprintf("multiget from family %q", family), err)
	}
	return out, nil
}

// ClearFamily drops then immediately recreates the bucket within the same
// transaction, so no other transaction can observe the family missing.
func (e *Engine) ClearFamily(name string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(name))
		return err
	})
	if err != nil {
		return cmn.Storage(fmt.Sprintf("clearing family %q", name), err)
	}
	return nil
}
