package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/klubi/inkwell/internal/store"
)

// blobRecord is how a blob is kept in the fallback and legacy stores,
// which only hold strings. Data is base64 in JSON.
type blobRecord struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

func encodeBlobRecord(data []byte, mimeType string) (string, error) {
	raw, err := json.Marshal(blobRecord{MimeType: mimeType, Data: data})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeBlobRecord(value string) (blobRecord, error) {
	var rec blobRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return blobRecord{}, fmt.Errorf("decoding blob record: %w", err)
	}
	return rec, nil
}

// SaveBlob stores binary data such as an embedded image under key.
func (s *Service) SaveBlob(ctx context.Context, key string, data []byte, mimeType string) error {
	if key == "" {
		return fmt.Errorf("save blob: empty key")
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	b := s.durable()
	if b == nil {
		value, err := encodeBlobRecord(data, mimeType)
		if err != nil {
			return fmt.Errorf("save blob %q: %w", key, err)
		}
		if err := s.fallback.SetItem(blobPrefix+key, value); err != nil {
			s.writeFailed(blobPrefix+key, err)
			return fmt.Errorf("save blob %q: %w", key, err)
		}
		return nil
	}

	if err := b.PutBlob(key, data, mimeType); err != nil {
		s.writeFailed(blobPrefix+key, err)
		return fmt.Errorf("save blob %q: %w", key, userError(err))
	}
	return nil
}

// LoadBlob returns the blob at key, or an error matching store.ErrNotFound.
func (s *Service) LoadBlob(ctx context.Context, key string) (store.BlobEntry, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return store.BlobEntry{}, err
	}

	b := s.durable()
	if b == nil {
		value, ok := s.fallback.GetItem(blobPrefix + key)
		if !ok {
			return store.BlobEntry{}, fmt.Errorf("blob %q: %w", key, store.ErrNotFound)
		}
		rec, err := decodeBlobRecord(value)
		if err != nil {
			return store.BlobEntry{}, fmt.Errorf("blob %q: %w", key, err)
		}
		return store.BlobEntry{Key: key, Blob: rec.Data, MimeType: rec.MimeType}, nil
	}

	e, err := b.GetBlob(key)
	if err != nil {
		return store.BlobEntry{}, fmt.Errorf("blob %q: %w", key, err)
	}
	return e, nil
}

// DeleteBlob removes the blob at key.
func (s *Service) DeleteBlob(ctx context.Context, key string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	b := s.durable()
	if b == nil {
		return s.fallback.RemoveItem(blobPrefix + key)
	}
	if err := b.DeleteBlob(key); err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

// ListBlobKeys returns the sorted keys of every stored blob.
func (s *Service) ListBlobKeys(ctx context.Context) ([]string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}

	b := s.durable()
	if b == nil {
		keys := []string{}
		for _, k := range s.fallback.Keys(blobPrefix) {
			keys = append(keys, strings.TrimPrefix(k, blobPrefix))
		}
		sort.Strings(keys)
		return keys, nil
	}

	keys, err := b.BlobKeys()
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}
