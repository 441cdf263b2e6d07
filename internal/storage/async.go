package storage

import (
	"context"
	"fmt"
	"sort"
)

// The methods in this file are the awaitable counterparts of the facade.
// Mutations still go through the write queue, so they are ordered with
// everything queued by GetItem/SetItem/RemoveItem/Clear, but they wait for
// their own operation and return its error.

// Get returns the value at key, reading the durable store when the cache
// does not know the key yet. Durable read failures are answered from the
// fallback store; the only errors returned come from ctx.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	if e, ok := s.cache.lookup(key); ok {
		s.mu.Unlock()
		return e.value, e.present, nil
	}
	if s.fallbackMode {
		s.mu.Unlock()
		v, ok := s.GetItem(key)
		return v, ok, nil
	}

	gen := s.cache.gen
	var (
		value   string
		present bool
	)
	done := s.submitLocked("get", func() error {
		value, present = s.readKey(key)
		return nil
	})
	s.mu.Unlock()

	if err := wait(ctx, done); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.fill(key, value, present, gen)
	// A write may have landed while we were reading; the cache has the
	// newest answer.
	e, _ := s.cache.lookup(key)
	return e.value, e.present, nil
}

// Set stores value at key and waits until the durable write has been
// applied. Quota errors are returned.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.fallbackMode {
		s.mu.Unlock()
		return s.SetItem(key, value)
	}
	s.cache.set(key, value)
	done := s.submitLocked("set", s.putOp(key, value))
	s.mu.Unlock()

	return wait(ctx, done)
}

// Remove deletes key and waits for the durable delete.
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.fallbackMode {
		s.mu.Unlock()
		return s.RemoveItem(key)
	}
	s.cache.remove(key)
	done := s.submitLocked("remove", s.removeOp(key))
	s.mu.Unlock()

	return wait(ctx, done)
}

// Keys returns the sorted keys of the generic table starting with prefix.
// The scan runs after every write queued before it.
func (s *Service) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.fallbackMode {
		keys := s.fallbackKVKeys(prefix)
		s.mu.Unlock()
		if keys == nil {
			keys = []string{}
		}
		return keys, nil
	}

	var keys []string
	done := s.submitLocked("keys", func() error {
		b := s.durable()
		if b == nil {
			return fmt.Errorf("keys %q: durable store is closed", prefix)
		}
		var err error
		keys, err = b.Keys(prefix)
		return err
	})
	s.mu.Unlock()

	if err := wait(ctx, done); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// ClearPrefix deletes every generic key starting with prefix and waits for
// the durable delete. An empty prefix is the same as Clear.
func (s *Service) ClearPrefix(ctx context.Context, prefix string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache.clearPrefix(prefix)
	if s.fallbackMode {
		defer s.mu.Unlock()
		return s.clearFallbackKV(prefix)
	}
	done := s.submitLocked("clear", s.clearOp(prefix))
	s.mu.Unlock()

	return wait(ctx, done)
}

func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
