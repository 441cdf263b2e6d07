package store

import "time"

type options struct {
	now         func() time.Time
	openTimeout time.Duration
	quotaBytes  int
}

func defaultOptions() options {
	return options{
		now:         time.Now,
		openTimeout: time.Second,
	}
}

// Option configures a backend.
type Option func(*options)

// WithClock sets the clock used for UpdatedAt. Mostly useful in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithOpenTimeout bounds how long BoltStore waits for the file lock. A zero
// timeout waits forever, which is never what a caller with a fallback wants.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.openTimeout = d
		}
	}
}

// WithQuota caps the total key plus value bytes held by a MemoryStore.
func WithQuota(bytes int) Option {
	return func(o *options) {
		o.quotaBytes = bytes
	}
}
