package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/klubi/inkwell/internal/store"
)

// Project records are large and read on demand, so they bypass the read
// cache and the write queue and go straight to the durable store. In
// fallback mode they live in the fallback store under "project:<id>".

// SaveProject upserts the project record id. A full store is reported as an
// error matching store.ErrQuotaExceeded whose message can be shown to the
// user as-is.
func (s *Service) SaveProject(ctx context.Context, id, data string) error {
	if id == "" {
		return fmt.Errorf("save project: empty id")
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	b := s.durable()
	if b == nil {
		if err := s.fallback.SetItem(projectPrefix+id, data); err != nil {
			s.writeFailed(projectPrefix+id, err)
			return fmt.Errorf("save project %q: %w", id, err)
		}
		return nil
	}

	if err := b.PutProject(id, data); err != nil {
		s.writeFailed(projectPrefix+id, err)
		return fmt.Errorf("save project %q: %w", id, userError(err))
	}
	return nil
}

// LoadProject returns the project record id, or an error matching
// store.ErrNotFound.
func (s *Service) LoadProject(ctx context.Context, id string) (store.ProjectEntry, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return store.ProjectEntry{}, err
	}

	b := s.durable()
	if b == nil {
		data, ok := s.fallback.GetItem(projectPrefix + id)
		if !ok {
			return store.ProjectEntry{}, fmt.Errorf("project %q: %w", id, store.ErrNotFound)
		}
		return store.ProjectEntry{ID: id, Data: data}, nil
	}

	p, err := b.GetProject(id)
	if err != nil {
		return store.ProjectEntry{}, fmt.Errorf("project %q: %w", id, err)
	}
	return p, nil
}

// DeleteProject removes the project record id. Deleting an unknown project
// is not an error.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	b := s.durable()
	if b == nil {
		return s.fallback.RemoveItem(projectPrefix + id)
	}
	if err := b.DeleteProject(id); err != nil {
		return fmt.Errorf("delete project %q: %w", id, err)
	}
	return nil
}

// ListProjectIDs returns the sorted ids of every stored project.
func (s *Service) ListProjectIDs(ctx context.Context) ([]string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}

	b := s.durable()
	if b == nil {
		ids := []string{}
		for _, k := range s.fallback.Keys(projectPrefix) {
			ids = append(ids, strings.TrimPrefix(k, projectPrefix))
		}
		sort.Strings(ids)
		return ids, nil
	}

	ids, err := b.ProjectIDs()
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
