package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// Reasons reported when migration does not run.
const (
	reasonFallback = "durable store unavailable"
	reasonNoLegacy = "no legacy store configured"
	reasonEmpty    = "legacy store is empty"
	reasonDone     = "already migrated"
)

// RunMigrationIfNeeded copies the legacy store into the durable store once.
//
// Migration runs as a single queued job, so it is ordered with every other
// write. Keys this process has already written are left alone, as are
// project and blob records the durable store already has. The sentinel key
// is written afterwards; whether it is written when some keys failed
// depends on the MigrationPolicy. The legacy store is only cleared after a
// run with no failures.
func (s *Service) RunMigrationIfNeeded(ctx context.Context) (v1.MigrationReport, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return v1.MigrationReport{}, err
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := s.sf.DoChan("migrate", func() (interface{}, error) {
		return s.migrate(flightCtx)
	})
	select {
	case res := <-ch:
		report, _ := res.Val.(v1.MigrationReport)
		return report, res.Err
	case <-ctx.Done():
		return v1.MigrationReport{}, ctx.Err()
	}
}

func (s *Service) migrate(ctx context.Context) (v1.MigrationReport, error) {
	var report v1.MigrationReport

	if s.FallbackMode() {
		report.Reason = reasonFallback
		return report, nil
	}
	if s.legacy == nil {
		report.Reason = reasonNoLegacy
		return report, nil
	}
	if s.legacy.Len() == 0 {
		report.Reason = reasonEmpty
		return report, nil
	}

	s.mu.Lock()
	gen := s.cache.gen
	done := s.submitLocked("migrate", func() error {
		var err error
		report, err = s.copyLegacy(gen)
		return err
	})
	s.mu.Unlock()

	if err := wait(ctx, done); err != nil {
		return report, fmt.Errorf("migrating legacy store: %w", err)
	}
	if !report.Ran {
		return report, nil
	}

	MigratedKeysTotal.WithLabelValues("migrated").Add(float64(report.Migrated))
	MigratedKeysTotal.WithLabelValues("skipped").Add(float64(report.Skipped))
	MigratedKeysTotal.WithLabelValues("failed").Add(float64(report.Failed))

	if report.Completed && report.Failed == 0 {
		if err := s.legacy.Clear(); err != nil {
			s.logger.Warn("migration finished but the legacy store could not be cleared", zap.Error(err))
		} else {
			report.LegacyCleared = true
		}
	}

	fields := []zap.Field{
		zap.Int("migrated", report.Migrated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Bool("completed", report.Completed),
	}
	if report.Failed > 0 {
		s.logger.Warn("legacy migration finished with failures",
			append(fields, zap.Strings("failedKeys", report.FailedKeys))...)
	} else {
		s.logger.Info("legacy migration finished", fields...)
	}

	s.events.emit(v1.Event{
		Type:    v1.EventMigrated,
		Message: fmt.Sprintf("migrated %d keys, %d failed", report.Migrated, report.Failed),
	})
	return report, nil
}

// copyLegacy runs on the queue worker.
func (s *Service) copyLegacy(gen uint64) (v1.MigrationReport, error) {
	var report v1.MigrationReport

	b := s.durable()
	if b == nil {
		return report, store.ErrClosed
	}

	switch e, err := b.Get(MigrationSentinelKey); {
	case err == nil && e.Value == MigrationComplete:
		report.Reason = reasonDone
		return report, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return report, fmt.Errorf("reading migration sentinel: %w", err)
	}

	report.Ran = true
	for _, key := range s.legacy.Keys("") {
		value, ok := s.legacy.GetItem(key)
		if !ok {
			continue
		}

		skip, err := s.migrateKey(b, key, value, gen)
		switch {
		case err != nil:
			s.logger.Warn("failed to migrate legacy key", zap.String("key", key), zap.Error(err))
			report.Failed++
			report.FailedKeys = append(report.FailedKeys, key)
		case skip:
			report.Skipped++
		default:
			report.Migrated++
		}
	}

	if report.Failed > 0 && s.policy == MigrateRetryOnFailure {
		return report, nil
	}
	if err := b.Put(MigrationSentinelKey, MigrationComplete); err != nil {
		return report, fmt.Errorf("writing migration sentinel: %w", err)
	}
	s.mu.Lock()
	s.cache.fill(MigrationSentinelKey, MigrationComplete, true, gen)
	s.mu.Unlock()
	report.Completed = true
	return report, nil
}

// migrateKey copies one legacy key. skip reports that a newer copy already
// exists.
func (s *Service) migrateKey(b store.Backend, key, value string, gen uint64) (skip bool, err error) {
	switch {
	case strings.HasPrefix(key, projectPrefix):
		id := strings.TrimPrefix(key, projectPrefix)
		if _, err := b.GetProject(id); err == nil {
			return true, nil
		}
		return false, b.PutProject(id, value)

	case strings.HasPrefix(key, blobPrefix):
		name := strings.TrimPrefix(key, blobPrefix)
		if _, err := b.GetBlob(name); err == nil {
			return true, nil
		}
		rec, err := decodeBlobRecord(value)
		if err != nil {
			return false, err
		}
		return false, b.PutBlob(name, rec.Data, rec.MimeType)
	}

	s.mu.Lock()
	touched := s.cache.touched(key)
	s.mu.Unlock()
	if touched {
		return true, nil
	}
	// A retried run finds keys an earlier run copied, possibly since
	// overwritten.
	switch _, err := b.Get(key); {
	case err == nil:
		return true, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	if err := b.Put(key, value); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.cache.fill(key, value, true, gen)
	s.mu.Unlock()
	return false, nil
}
