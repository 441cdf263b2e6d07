package store

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a thread-safe, in-memory Backend. Useful for unit tests and
// for running without a data directory. An optional quota makes it report
// ErrQuotaExceeded the way a full disk would.
type MemoryStore struct {
	mu       sync.RWMutex
	opts     options
	kv       map[string]StorageEntry
	projects map[string]ProjectEntry
	blobs    map[string]BlobEntry
	closed   bool
}

// NewMemoryStore creates a ready-to-use in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:     o,
		kv:       make(map[string]StorageEntry),
		projects: make(map[string]ProjectEntry),
		blobs:    make(map[string]BlobEntry),
	}
}

// ---------- key/value ----------

func (m *MemoryStore) Get(key string) (StorageEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return StorageEntry{}, ErrClosed
	}
	e, ok := m.kv[key]
	if !ok {
		return StorageEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delta := len(key) + len(value)
	if old, ok := m.kv[key]; ok {
		delta -= len(old.Key) + len(old.Value)
	}
	if err := m.checkQuota(delta); err != nil {
		return err
	}
	m.kv[key] = StorageEntry{Key: key, Value: value, UpdatedAt: m.opts.now()}
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.kv, key)
	return nil
}

func (m *MemoryStore) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.kv))
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) ClearPrefix(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			delete(m.kv, k)
		}
	}
	return nil
}

func (m *MemoryStore) Entries() ([]StorageEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	entries := make([]StorageEntry, 0, len(m.kv))
	for _, e := range m.kv {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// ---------- projects ----------

func (m *MemoryStore) PutProject(id, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delta := len(id) + len(data)
	if old, ok := m.projects[id]; ok {
		delta -= len(old.ID) + len(old.Data)
	}
	if err := m.checkQuota(delta); err != nil {
		return err
	}
	m.projects[id] = ProjectEntry{ID: id, Data: data, UpdatedAt: m.opts.now()}
	return nil
}

func (m *MemoryStore) GetProject(id string) (ProjectEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ProjectEntry{}, ErrClosed
	}
	p, ok := m.projects[id]
	if !ok {
		return ProjectEntry{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.projects, id)
	return nil
}

func (m *MemoryStore) ProjectIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ---------- blobs ----------

func (m *MemoryStore) PutBlob(key string, blob []byte, mimeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delta := len(key) + len(blob)
	if old, ok := m.blobs[key]; ok {
		delta -= len(old.Key) + len(old.Blob)
	}
	if err := m.checkQuota(delta); err != nil {
		return err
	}

	// Copy so later mutation of the caller's slice does not leak in.
	stored := make([]byte, len(blob))
	copy(stored, blob)
	m.blobs[key] = BlobEntry{Key: key, Blob: stored, MimeType: mimeType, UpdatedAt: m.opts.now()}
	return nil
}

func (m *MemoryStore) GetBlob(key string) (BlobEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return BlobEntry{}, ErrClosed
	}
	b, ok := m.blobs[key]
	if !ok {
		return BlobEntry{}, ErrNotFound
	}
	out := b
	out.Blob = make([]byte, len(b.Blob))
	copy(out.Blob, b.Blob)
	return out, nil
}

func (m *MemoryStore) DeleteBlob(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.blobs, key)
	return nil
}

func (m *MemoryStore) BlobKeys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ---------- Close ----------

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ---------- internal ----------

// checkQuota must be called with m.mu held for writing.
func (m *MemoryStore) checkQuota(delta int) error {
	if m.opts.quotaBytes <= 0 || delta <= 0 {
		return nil
	}
	if m.usedBytes()+delta > m.opts.quotaBytes {
		return ErrQuotaExceeded
	}
	return nil
}

func (m *MemoryStore) usedBytes() int {
	total := 0
	for k, e := range m.kv {
		total += len(k) + len(e.Value)
	}
	for id, p := range m.projects {
		total += len(id) + len(p.Data)
	}
	for k, b := range m.blobs {
		total += len(k) + len(b.Blob)
	}
	return total
}

var _ Backend = (*MemoryStore)(nil)
