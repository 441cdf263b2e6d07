package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// Hydrate loads every generic key into the read cache so that synchronous
// reads become authoritative. Concurrent calls share one run. Keys written,
// removed or cleared while the snapshot is being read keep their local
// state. On failure the service stays unhydrated and a later call retries.
func (s *Service) Hydrate(ctx context.Context) error {
	if s.IsHydrated() {
		return nil
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := s.sf.DoChan("hydrate", func() (interface{}, error) {
		return nil, s.hydrate(flightCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) hydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return nil
	}

	if s.fallbackMode {
		gen := s.cache.gen
		for _, k := range s.fallbackKVKeys("") {
			v, ok := s.fallback.GetItem(k)
			s.cache.fill(k, v, ok, gen)
		}
		s.markHydratedLocked()
		s.mu.Unlock()
		s.announceReady()
		return nil
	}

	// The snapshot is read by the worker so it reflects every write queued
	// before it, and nothing queued after it.
	gen := s.cache.gen
	var entries []store.StorageEntry
	done := s.submitLocked("hydrate", func() error {
		b := s.durable()
		if b == nil {
			return store.ErrClosed
		}
		var err error
		entries, err = b.Entries()
		return err
	})
	s.mu.Unlock()

	if err := wait(ctx, done); err != nil {
		if errors.Is(err, store.ErrClosed) {
			return err
		}
		return fmt.Errorf("reading durable snapshot: %w", err)
	}

	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return nil
	}
	for _, e := range entries {
		s.cache.fill(e.Key, e.Value, true, gen)
	}
	s.markHydratedLocked()
	s.mu.Unlock()

	s.logger.Info("storage hydrated", zap.Int("keys", len(entries)))
	s.announceReady()
	return nil
}

// markHydratedLocked flips the cache to authoritative. Must be called with
// s.mu held.
func (s *Service) markHydratedLocked() {
	s.cache.complete = true
	s.hydrated = true
	close(s.readyCh)
}

// announceReady publishes the one-time ready signal.
func (s *Service) announceReady() {
	Hydrated.Set(1)
	s.events.emit(v1.Event{Type: v1.EventReady})
}

// WaitForStorage blocks until hydration has completed or ctx ends.
func (s *Service) WaitForStorage(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsHydrated reports whether the read cache is authoritative.
func (s *Service) IsHydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Ready returns a channel that is closed once hydration has completed.
func (s *Service) Ready() <-chan struct{} {
	return s.readyCh
}
