package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS blobs (
	key        TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	mime_type  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore persists the three tables to a SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
	opts  options
}

// NewSQLiteStore opens and migrates a SQLite store at path.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, opts: o}, nil
}

// ---------- key/value ----------

func (s *SQLiteStore) Get(key string) (StorageEntry, error) {
	var (
		e  StorageEntry
		ts int64
	)
	err := s.sqlDB.QueryRow(`SELECT key, value, updated_at FROM kv WHERE key = ?`, key).Scan(&e.Key, &e.Value, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return StorageEntry{}, ErrNotFound
	}
	if err != nil {
		return StorageEntry{}, fmt.Errorf("get %q: %w", key, err)
	}
	e.UpdatedAt = time.Unix(0, ts)
	return e, nil
}

func (s *SQLiteStore) Put(key, value string) error {
	_, err := s.sqlDB.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.opts.now().UnixNano(),
	)
	return classify(err)
}

func (s *SQLiteStore) Delete(key string) error {
	_, err := s.sqlDB.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) Keys(prefix string) ([]string, error) {
	return s.queryStrings(`SELECT key FROM kv WHERE substr(key, 1, length(?1)) = ?1 ORDER BY key`, prefix)
}

func (s *SQLiteStore) ClearPrefix(prefix string) error {
	_, err := s.sqlDB.Exec(`DELETE FROM kv WHERE substr(key, 1, length(?1)) = ?1`, prefix)
	return err
}

func (s *SQLiteStore) Entries() ([]StorageEntry, error) {
	rows, err := s.sqlDB.Query(`SELECT key, value, updated_at FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StorageEntry
	for rows.Next() {
		var (
			e  StorageEntry
			ts int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &ts); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(0, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------- projects ----------

func (s *SQLiteStore) PutProject(id, data string) error {
	_, err := s.sqlDB.Exec(
		`INSERT INTO projects (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, data, s.opts.now().UnixNano(),
	)
	return classify(err)
}

func (s *SQLiteStore) GetProject(id string) (ProjectEntry, error) {
	var (
		p  ProjectEntry
		ts int64
	)
	err := s.sqlDB.QueryRow(`SELECT id, data, updated_at FROM projects WHERE id = ?`, id).Scan(&p.ID, &p.Data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectEntry{}, ErrNotFound
	}
	if err != nil {
		return ProjectEntry{}, fmt.Errorf("get project %q: %w", id, err)
	}
	p.UpdatedAt = time.Unix(0, ts)
	return p, nil
}

func (s *SQLiteStore) DeleteProject(id string) error {
	_, err := s.sqlDB.Exec(`DELETE FROM projects WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ProjectIDs() ([]string, error) {
	return s.queryStrings(`SELECT id FROM projects ORDER BY id`)
}

// ---------- blobs ----------

func (s *SQLiteStore) PutBlob(key string, blob []byte, mimeType string) error {
	if blob == nil {
		blob = []byte{}
	}
	_, err := s.sqlDB.Exec(
		`INSERT INTO blobs (key, blob, mime_type, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, mime_type = excluded.mime_type, updated_at = excluded.updated_at`,
		key, blob, mimeType, s.opts.now().UnixNano(),
	)
	return classify(err)
}

func (s *SQLiteStore) GetBlob(key string) (BlobEntry, error) {
	var (
		b  BlobEntry
		ts int64
	)
	err := s.sqlDB.QueryRow(`SELECT key, blob, mime_type, updated_at FROM blobs WHERE key = ?`, key).
		Scan(&b.Key, &b.Blob, &b.MimeType, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return BlobEntry{}, ErrNotFound
	}
	if err != nil {
		return BlobEntry{}, fmt.Errorf("get blob %q: %w", key, err)
	}
	b.UpdatedAt = time.Unix(0, ts)
	return b, nil
}

func (s *SQLiteStore) DeleteBlob(key string) error {
	_, err := s.sqlDB.Exec(`DELETE FROM blobs WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) BlobKeys() ([]string, error) {
	return s.queryStrings(`SELECT key FROM blobs ORDER BY key`)
}

// ---------- Close ----------

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ---------- internal ----------

func (s *SQLiteStore) queryStrings(query string, args ...interface{}) ([]string, error) {
	rows, err := s.sqlDB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// classify maps SQLITE_FULL to ErrQuotaExceeded so the queue can warn.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_FULL {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

var _ Backend = (*SQLiteStore)(nil)
