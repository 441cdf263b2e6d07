package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	kvBucket      = []byte("kv")
	projectBucket = []byte("projects")
	blobBucket    = []byte("blobs")
)

// BoltStore persists the three tables to a BoltDB file on disk. Rows are
// stored as JSON-encoded entries so UpdatedAt survives alongside the payload.
type BoltStore struct {
	db   *bolt.DB
	opts options
}

// NewBoltStore opens (or creates) a BoltDB database at path. BoltDB holds an
// exclusive file lock, so a second process opening the same path fails after
// the open timeout instead of blocking forever.
func NewBoltStore(path string, opts ...Option) (*BoltStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: o.openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database %s: %w", path, err)
	}

	// Ensure the buckets exist.
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{kvBucket, projectBucket, blobBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, opts: o}, nil
}

// ---------- key/value ----------

func (b *BoltStore) Get(key string) (StorageEntry, error) {
	var e StorageEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(kvBucket), key, &e)
	})
	return e, err
}

func (b *BoltStore) Put(key, value string) error {
	return b.putJSON(kvBucket, key, StorageEntry{Key: key, Value: value, UpdatedAt: b.opts.now()})
}

func (b *BoltStore) Delete(key string) error {
	return b.deleteKey(kvBucket, key)
}

func (b *BoltStore) Keys(prefix string) ([]string, error) {
	return b.keys(kvBucket, prefix)
}

func (b *BoltStore) ClearPrefix(prefix string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(kvBucket)
		var doomed [][]byte
		if err := scan(bkt, prefix, func(k, _ []byte) error {
			doomed = append(doomed, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range doomed {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) Entries() ([]StorageEntry, error) {
	var entries []StorageEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		return scan(tx.Bucket(kvBucket), "", func(_, v []byte) error {
			var e StorageEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// ---------- projects ----------

func (b *BoltStore) PutProject(id, data string) error {
	return b.putJSON(projectBucket, id, ProjectEntry{ID: id, Data: data, UpdatedAt: b.opts.now()})
}

func (b *BoltStore) GetProject(id string) (ProjectEntry, error) {
	var p ProjectEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(projectBucket), id, &p)
	})
	return p, err
}

func (b *BoltStore) DeleteProject(id string) error {
	return b.deleteKey(projectBucket, id)
}

func (b *BoltStore) ProjectIDs() ([]string, error) {
	return b.keys(projectBucket, "")
}

// ---------- blobs ----------

func (b *BoltStore) PutBlob(key string, blob []byte, mimeType string) error {
	return b.putJSON(blobBucket, key, BlobEntry{Key: key, Blob: blob, MimeType: mimeType, UpdatedAt: b.opts.now()})
}

func (b *BoltStore) GetBlob(key string) (BlobEntry, error) {
	var e BlobEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(blobBucket), key, &e)
	})
	return e, err
}

func (b *BoltStore) DeleteBlob(key string) error {
	return b.deleteKey(blobBucket, key)
}

func (b *BoltStore) BlobKeys() ([]string, error) {
	return b.keys(blobBucket, "")
}

// ---------- Close ----------

func (b *BoltStore) Close() error {
	return b.db.Close()
}

// ---------- internal ----------

func (b *BoltStore) putJSON(bucket []byte, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), raw)
	})
}

func (b *BoltStore) deleteKey(bucket []byte, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		// Delete on a missing key is a no-op in bbolt.
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

func (b *BoltStore) keys(bucket []byte, prefix string) ([]string, error) {
	keys := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return scan(tx.Bucket(bucket), prefix, func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func getJSON(bkt *bolt.Bucket, key string, target interface{}) error {
	raw := bkt.Get([]byte(key))
	if raw == nil {
		return ErrNotFound
	}
	return json.Unmarshal(raw, target)
}

// scan walks every key in bkt starting with prefix, in byte order.
func scan(bkt *bolt.Bucket, prefix string, fn func(k, v []byte) error) error {
	c := bkt.Cursor()
	pfx := []byte(prefix)
	for k, v := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

var _ Backend = (*BoltStore)(nil)
