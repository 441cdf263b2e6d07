package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// GetItem returns the value stored at key without blocking.
//
// A key the cache already knows about is answered from memory. In fallback
// mode the fallback store is read directly. Otherwise, before hydration has
// finished, an unknown key reports absent and a background fetch is queued
// so the next GetItem for it is correct. After hydration the cache holds
// every key, so a miss is a real miss.
func (s *Service) GetItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache.lookup(key); ok {
		CacheReadsTotal.WithLabelValues("hit").Inc()
		return e.value, e.present
	}

	if s.fallbackMode {
		CacheReadsTotal.WithLabelValues("fallback").Inc()
		v, ok := s.fallback.GetItem(key)
		s.cache.fill(key, v, ok, s.cache.gen)
		return v, ok
	}

	CacheReadsTotal.WithLabelValues("miss").Inc()
	s.fetchLocked(key)
	return "", false
}

// fetchLocked queues one background read of key unless one is already in
// flight. Must be called with s.mu held.
func (s *Service) fetchLocked(key string) {
	if s.fetching[key] {
		return
	}
	s.fetching[key] = true

	gen := s.cache.gen
	err := s.enqueueLocked("fetch", func() error {
		v, ok := s.readKey(key)

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fetching, key)
		s.cache.fill(key, v, ok, gen)
		return nil
	})
	if err != nil {
		delete(s.fetching, key)
	}
}

// SetItem stores value at key. The cache is updated before SetItem returns,
// so GetItem observes the write immediately. In durable mode the write is
// queued and SetItem only fails if the service is closed; failures of the
// durable write itself are reported through Subscribe. In fallback mode the
// write is applied synchronously and a full store is returned as an error
// wrapping store.ErrQuotaExceeded. The first mutation waits for the
// readiness gate, so a write is never queued for a store the gate rejects.
func (s *Service) SetItem(key, value string) error {
	s.awaitGate()
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.cache.lookup(key)
	s.cache.set(key, value)

	if s.fallbackMode {
		if err := s.fallback.SetItem(key, value); err != nil {
			s.cache.restore(key, prev, known)
			s.writeFailed(key, err)
			return err
		}
		return nil
	}

	if err := s.enqueueLocked("set", s.putOp(key, value)); err != nil {
		s.cache.restore(key, prev, known)
		return err
	}
	return nil
}

// RemoveItem deletes key. Like SetItem, the cache changes immediately and
// the durable delete is queued.
func (s *Service) RemoveItem(key string) error {
	s.awaitGate()
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.cache.lookup(key)
	s.cache.remove(key)

	if s.fallbackMode {
		if err := s.fallback.RemoveItem(key); err != nil {
			s.cache.restore(key, prev, known)
			return err
		}
		return nil
	}

	if err := s.enqueueLocked("remove", s.removeOp(key)); err != nil {
		s.cache.restore(key, prev, known)
		return err
	}
	return nil
}

// Clear deletes every key of the generic table. Projects and blobs are not
// touched.
func (s *Service) Clear() error {
	s.awaitGate()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.clearPrefix("")
	if s.fallbackMode {
		return s.clearFallbackKV("")
	}
	return s.enqueueLocked("clear", s.clearOp(""))
}

// awaitGate resolves the readiness gate before a mutation picks between
// the fallback and the durable path. The open is bounded by the opener's
// own timeout.
func (s *Service) awaitGate() {
	_ = s.EnsureReady(context.Background())
}

func (s *Service) writeFailed(key string, err error) {
	if !store.IsQuotaError(err) {
		s.logger.Error("write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.logger.Warn("storage is full", zap.String("key", key), zap.Error(err))
	s.events.emit(v1.Event{Type: v1.EventQuotaExceeded, Key: key, Message: quotaMessage})
}

// userError prefixes quota failures with the user-facing warning. The
// result still matches store.ErrQuotaExceeded with errors.Is.
func userError(err error) error {
	if err != nil && store.IsQuotaError(err) {
		return fmt.Errorf("%s: %w", quotaMessage, err)
	}
	return err
}
