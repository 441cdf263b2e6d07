// Package store provides the durable persistence backends for Inkwell.
//
// A backend holds three tables: a generic string key/value table, a table of
// large project records keyed by id, and a table of binary blobs. Backends do
// no caching and expose no synchronous facade; that is the job of the
// storage package.
package store

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// StorageEntry is a row of the generic key/value table.
type StorageEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectEntry is a row of the project table. Data is an opaque serialized
// manuscript and is expected to be large.
type ProjectEntry struct {
	ID        string    `json:"id"`
	Data      string    `json:"data"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BlobEntry is a row of the blob table.
type BlobEntry struct {
	Key       string    `json:"key"`
	Blob      []byte    `json:"blob"`
	MimeType  string    `json:"mimeType"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Backend is the durable store interface. All methods are safe for
// concurrent use.
type Backend interface {
	// Get returns the entry stored at key, or ErrNotFound.
	Get(key string) (StorageEntry, error)

	// Put upserts key with a store-assigned UpdatedAt. Quota and disk-full
	// failures are returned unchanged so callers can classify them with
	// IsQuotaError.
	Put(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys returns the sorted keys starting with prefix. An empty prefix
	// matches every key.
	Keys(prefix string) ([]string, error)

	// ClearPrefix deletes every key starting with prefix.
	ClearPrefix(prefix string) error

	// Entries returns every key/value entry, sorted by key.
	Entries() ([]StorageEntry, error)

	PutProject(id, data string) error
	GetProject(id string) (ProjectEntry, error)
	DeleteProject(id string) error
	ProjectIDs() ([]string, error)

	PutBlob(key string, blob []byte, mimeType string) error
	GetBlob(key string) (BlobEntry, error)
	DeleteBlob(key string) error
	BlobKeys() ([]string, error)

	// Close releases any resources held by the backend (file handles,
	// connections).
	Close() error
}

// Common sentinel errors.
var (
	ErrNotFound      = errors.New("key not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrUnsupported   = errors.New("durable storage is not supported")
	ErrClosed        = errors.New("store is closed")
)

// IsQuotaError reports whether err means the backing storage is full.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, syscall.ENOSPC)
}

// Open opens the backend named by kind. Kind "none" reports ErrUnsupported
// so that callers switch to their fallback path.
func Open(kind, path string, timeout time.Duration) (Backend, error) {
	switch kind {
	case "bolt":
		return NewBoltStore(path, WithOpenTimeout(timeout))
	case "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	case "none", "":
		return nil, ErrUnsupported
	default:
		return nil, fmt.Errorf("unknown store type %q: %w", kind, ErrUnsupported)
	}
}
