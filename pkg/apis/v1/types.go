// Package v1 defines the wire types of the Inkwell storage API.
package v1

import "time"

const (
	APIVersion = "inkwell.dev/v1"
)

// Item is a single key/value pair of the generic table.
type Item struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// KeyList is the response of a prefix scan.
type KeyList struct {
	Prefix string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Keys   []string `json:"keys" yaml:"keys"`
}

// Project is a stored manuscript.
type Project struct {
	ID        string    `json:"id" yaml:"id"`
	Data      string    `json:"data" yaml:"data"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// ProjectList is the response of a project listing.
type ProjectList struct {
	IDs []string `json:"ids" yaml:"ids"`
}

// BlobList is the response of a blob listing.
type BlobList struct {
	Keys []string `json:"keys" yaml:"keys"`
}

// Status reports the lifecycle state of the storage service.
type Status struct {
	Initialized  bool `json:"initialized" yaml:"initialized"`
	FallbackMode bool `json:"fallbackMode" yaml:"fallbackMode"`
	Hydrated     bool `json:"hydrated" yaml:"hydrated"`
	QueueDepth   int  `json:"queueDepth" yaml:"queueDepth"`
	CachedKeys   int  `json:"cachedKeys" yaml:"cachedKeys"`
}

// MigrationReport describes one run of the legacy migration.
type MigrationReport struct {
	// Ran is false when migration was not needed; Reason says why.
	Ran           bool     `json:"ran" yaml:"ran"`
	Reason        string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Migrated      int      `json:"migrated" yaml:"migrated"`
	Skipped       int      `json:"skipped" yaml:"skipped"`
	Failed        int      `json:"failed" yaml:"failed"`
	FailedKeys    []string `json:"failedKeys,omitempty" yaml:"failedKeys,omitempty"`
	Completed     bool     `json:"completed" yaml:"completed"`
	LegacyCleared bool     `json:"legacyCleared" yaml:"legacyCleared"`
}

// EventType identifies a storage lifecycle event.
type EventType string

const (
	// EventReady fires exactly once, when hydration has completed.
	EventReady         EventType = "storage:ready"
	EventFallback      EventType = "storage:fallback"
	EventWriteFailed   EventType = "storage:write-failed"
	EventQuotaExceeded EventType = "storage:quota-exceeded"
	EventMigrated      EventType = "storage:migrated"
)

// Event is emitted by the storage service to its subscribers.
type Event struct {
	Type    EventType `json:"type" yaml:"type"`
	Key     string    `json:"key,omitempty" yaml:"key,omitempty"`
	Message string    `json:"message,omitempty" yaml:"message,omitempty"`
	Time    time.Time `json:"time" yaml:"time"`
}

// ErrorResponse is the JSON error envelope returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
