// Package storage is Inkwell's persistence service. It gives callers a
// synchronous, localStorage-shaped API over an asynchronous durable store.
//
// Reads are answered from an in-memory read cache. Writes update the cache
// immediately and are queued for the durable store, so a read right after
// a write always sees it, while durability is eventual. Until hydration has
// finished, the very first read of a key the cache has not seen yet returns
// "absent" and schedules a background fetch; the next read is correct.
// Callers that cannot tolerate that window wait on WaitForStorage first.
//
// When the durable store cannot be opened the service switches to fallback
// mode and serves everything from the synchronous fallback store instead.
// The two paths never mix: in durable mode nothing is written to the
// fallback store, and in fallback mode nothing is queued.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/klubi/inkwell/internal/fallback"
	"github.com/klubi/inkwell/internal/queue"
	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// MigrationSentinelKey marks the legacy migration as done when it holds
// MigrationComplete.
const (
	MigrationSentinelKey = "migration-complete"
	MigrationComplete    = "complete"
)

// Fallback keys for the project and blob tables.
const (
	projectPrefix = "project:"
	blobPrefix    = "blob:"
)

// quotaMessage is the warning shown to users when a write did not fit.
const quotaMessage = "Storage is full and your last change was not saved. Free up space by deleting unused projects or images."

// ErrServiceClosed is returned by Close when the service is already closed.
var ErrServiceClosed = errors.New("storage service is closed")

// Opener opens the durable backend. Returning an error, including
// store.ErrUnsupported, switches the service to fallback mode.
type Opener func(ctx context.Context) (store.Backend, error)

// LegacyStore is the synchronous store older releases kept everything in.
type LegacyStore interface {
	Keys(prefix string) []string
	GetItem(key string) (string, bool)
	Clear() error
	Len() int
}

// MigrationPolicy decides what happens when some legacy keys fail to copy.
type MigrationPolicy int

const (
	// MigrateBestEffortOnce marks migration complete even with failures and
	// keeps the legacy store so the failed keys can be recovered by hand.
	MigrateBestEffortOnce MigrationPolicy = iota

	// MigrateRetryOnFailure withholds the sentinel so the next start tries
	// again.
	MigrateRetryOnFailure
)

// Options configure a Service.
type Options struct {
	Open     Opener
	Fallback *fallback.Store
	Legacy   LegacyStore // optional
	Logger   *zap.Logger

	SlowOpThreshold time.Duration
	MigrationPolicy MigrationPolicy
}

// Service is the storage service. Construct one per process with New and
// share it; every method is safe for concurrent use.
type Service struct {
	open     Opener
	fallback *fallback.Store
	legacy   LegacyStore
	logger   *zap.Logger
	policy   MigrationPolicy

	queue  *queue.Queue
	events *broadcaster
	sf     singleflight.Group

	// mu guards everything below. Facade mutations hold it across the cache
	// update and the enqueue so cache order always matches queue order.
	mu           sync.Mutex
	cache        *readCache
	backend      store.Backend
	initialized  bool
	fallbackMode bool
	hydrated     bool
	readyCh      chan struct{}
	fetching     map[string]bool
	started      bool
	working      bool
	closed       bool
	released     bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New creates a Service. Nothing is opened until Start or the first call
// that needs the backend.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fb := opts.Fallback
	if fb == nil {
		fb = fallback.NewMemory(0)
	}
	open := opts.Open
	if open == nil {
		open = func(context.Context) (store.Backend, error) { return nil, store.ErrUnsupported }
	}

	s := &Service{
		open:     open,
		fallback: fb,
		legacy:   opts.Legacy,
		logger:   logger,
		policy:   opts.MigrationPolicy,
		events:   &broadcaster{},
		cache:    newReadCache(),
		readyCh:  make(chan struct{}),
		fetching: make(map[string]bool),
	}
	s.queue = queue.New(queue.Options{
		Logger:          logger,
		SlowOpThreshold: opts.SlowOpThreshold,
		OnDone:          s.opDone,
	})
	return s
}

// Start launches the write queue worker and the boot sequence: open the
// durable store, migrate legacy data if needed, then hydrate the cache.
// Start returns immediately; use WaitForStorage to wait for hydration.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.startWorkerLocked(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.boot(ctx)
	}()
}

// startWorkerLocked launches the queue worker once. Ops queued before the
// gate resolves wait for it, then run against whichever store it picked.
// Must be called with s.mu held.
func (s *Service) startWorkerLocked(ctx context.Context) {
	if s.working {
		return
	}
	s.working = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.EnsureReady(ctx); err != nil {
			return
		}
		s.queue.Run(ctx)
	}()
}

func (s *Service) boot(ctx context.Context) {
	if err := s.EnsureReady(ctx); err != nil {
		return
	}
	if _, err := s.RunMigrationIfNeeded(ctx); err != nil {
		s.logger.Error("legacy migration failed", zap.Error(err))
	}
	if err := s.Hydrate(ctx); err != nil {
		s.logger.Error("hydration failed; reads stay best-effort", zap.Error(err))
	}
}

// Close drains pending writes, stops the worker and closes the backend.
// Writes queued on a service that was never started are drained too.
// Writes still queued when ctx ends are lost.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	s.closed = true
	if !s.working && s.queue.Len() > 0 {
		var workerCtx context.Context
		workerCtx, s.cancel = context.WithCancel(context.Background())
		s.startWorkerLocked(workerCtx)
	}
	working, cancel := s.working, s.cancel
	s.mu.Unlock()

	var drainErr error
	if working {
		if drainErr = s.queue.Drain(ctx); drainErr != nil {
			s.logger.Warn("closing with writes still queued",
				zap.Int("pending", s.queue.Len()),
				zap.Error(drainErr),
			)
		}
	}
	s.queue.Close()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.released = true
	s.mu.Unlock()

	s.events.close()

	if backend != nil {
		if err := backend.Close(); err != nil {
			return fmt.Errorf("closing durable store: %w", err)
		}
	}
	return drainErr
}

// Status reports the current lifecycle state.
func (s *Service) Status() v1.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return v1.Status{
		Initialized:  s.initialized,
		FallbackMode: s.fallbackMode,
		Hydrated:     s.hydrated,
		QueueDepth:   s.queue.Len(),
		CachedKeys:   s.cache.len(),
	}
}

// FallbackMode reports whether the durable store is unavailable.
func (s *Service) FallbackMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallbackMode
}

// ---------- queue plumbing ----------

// durable returns the open backend, or nil in fallback mode.
func (s *Service) durable() store.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// enqueueLocked queues a fire-and-forget op. Must be called with s.mu held.
func (s *Service) enqueueLocked(name string, op queue.Op) error {
	err := s.queue.Enqueue(name, op)
	QueueDepth.Set(float64(s.queue.Len()))
	return err
}

// submitLocked queues an op and returns its result channel. Must be called
// with s.mu held.
func (s *Service) submitLocked(name string, op queue.Op) <-chan error {
	done := s.queue.Submit(name, op)
	QueueDepth.Set(float64(s.queue.Len()))
	return done
}

// opDone is the queue's completion hook. Failed writes are logged and
// published; a full store additionally raises the user-facing warning.
func (s *Service) opDone(name string, elapsed time.Duration, err error) {
	OperationsTotal.WithLabelValues(name, resultLabel(err)).Inc()
	OperationDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	QueueDepth.Set(float64(s.queue.Len()))

	if err == nil {
		return
	}
	s.logger.Error("storage operation failed", zap.String("op", name), zap.Error(err))
	s.events.emit(v1.Event{Type: v1.EventWriteFailed, Message: err.Error()})

	if store.IsQuotaError(err) {
		s.logger.Warn("storage is full; the last change was not saved", zap.String("op", name))
		s.events.emit(v1.Event{
			Type:    v1.EventQuotaExceeded,
			Message: quotaMessage,
		})
	}
}

// readKey reads key from the durable store, or from the fallback store in
// fallback mode. A durable read error is logged and answered from the
// fallback store instead of being returned.
func (s *Service) readKey(key string) (string, bool) {
	b := s.durable()
	if b == nil {
		return s.fallback.GetItem(key)
	}
	e, err := b.Get(key)
	switch {
	case err == nil:
		return e.Value, true
	case errors.Is(err, store.ErrNotFound):
		return "", false
	default:
		s.logger.Warn("durable read failed; answering from fallback store",
			zap.String("key", key),
			zap.Error(err),
		)
		return s.fallback.GetItem(key)
	}
}

func (s *Service) putOp(key, value string) queue.Op {
	return func() error {
		if b := s.durable(); b != nil {
			if err := b.Put(key, value); err != nil {
				return fmt.Errorf("set %q: %w", key, err)
			}
			return nil
		}
		return s.fallback.SetItem(key, value)
	}
}

func (s *Service) removeOp(key string) queue.Op {
	return func() error {
		if b := s.durable(); b != nil {
			if err := b.Delete(key); err != nil {
				return fmt.Errorf("remove %q: %w", key, err)
			}
			return nil
		}
		return s.fallback.RemoveItem(key)
	}
}

func (s *Service) clearOp(prefix string) queue.Op {
	return func() error {
		if b := s.durable(); b != nil {
			if err := b.ClearPrefix(prefix); err != nil {
				return fmt.Errorf("clear %q: %w", prefix, err)
			}
			return nil
		}
		return s.clearFallbackKV(prefix)
	}
}

// ---------- fallback helpers ----------

// isTableKey reports whether a fallback key belongs to the project or blob
// table rather than the generic key/value namespace.
func isTableKey(key string) bool {
	return strings.HasPrefix(key, projectPrefix) || strings.HasPrefix(key, blobPrefix)
}

func (s *Service) fallbackKVKeys(prefix string) []string {
	var out []string
	for _, k := range s.fallback.Keys(prefix) {
		if !isTableKey(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s *Service) clearFallbackKV(prefix string) error {
	for _, k := range s.fallbackKVKeys(prefix) {
		if err := s.fallback.RemoveItem(k); err != nil {
			return err
		}
	}
	return nil
}
