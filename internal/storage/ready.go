package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// EnsureReady opens the durable store exactly once. Concurrent callers share
// the first caller's attempt; later callers return immediately. Failing to
// open is not an error: the service switches to fallback mode and EnsureReady
// still returns nil. Only ctx ending while waiting produces an error.
func (s *Service) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	done := s.initialized
	s.mu.Unlock()
	if done {
		return nil
	}

	// The flight must not die with whichever caller happened to start it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.sf.DoChan("ready", func() (interface{}, error) {
		s.initialize(flightCtx)
		return nil, nil
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	backend, err := s.open(ctx)
	if err == nil && backend == nil {
		err = store.ErrUnsupported
	}

	s.mu.Lock()
	released := s.released
	if err == nil && !released {
		s.backend = backend
	} else {
		s.fallbackMode = true
	}
	s.initialized = true
	s.mu.Unlock()

	if err == nil && released {
		// Close already ran; nobody else will close this backend.
		if cerr := backend.Close(); cerr != nil {
			s.logger.Warn("closing durable store opened after shutdown", zap.Error(cerr))
		}
		return
	}
	if err == nil {
		s.logger.Info("durable store ready")
		return
	}

	FallbackMode.Set(1)
	if errors.Is(err, store.ErrUnsupported) {
		s.logger.Warn("durable store unsupported; using fallback store", zap.Error(err))
	} else {
		s.logger.Warn("durable store failed to open; using fallback store", zap.Error(err))
	}
	s.events.emit(v1.Event{Type: v1.EventFallback, Message: err.Error()})
}
