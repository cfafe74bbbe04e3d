package store

import (
	"context"
	"time"

	"github.com/vascofialho-nl/releasecheck/models"
)

// Transient names used across the application.
const (
	// UpdateTransientKey holds the host's update bookkeeping.
	UpdateTransientKey = "update_plugins"
	// AvailabilityKeyPrefix prefixes the cached registry availability per repository.
	AvailabilityKeyPrefix = "repo_available:"
	// NotifiedKeyPrefix prefixes the last version announced per plugin.
	NotifiedKeyPrefix = "notified:"
	// ReleaseKeyPrefix prefixes the cached latest release per repository.
	ReleaseKeyPrefix = "release:"
)

// Store is a time-bounded key/value cache in the manner of host transients.
// A zero TTL means the value never expires.
type Store interface {
	Open(ctx context.Context) error
	Close() error
	Shutdown(ctx context.Context) error

	RestoreFromDisk(ctx context.Context, path string) error
	FlushToDisk(ctx context.Context, path string) error

	GetTransient(ctx context.Context, name string, dst any) (bool, error)
	SetTransient(ctx context.Context, name string, value any, ttl time.Duration) error
	DeleteTransient(ctx context.Context, name string) error
	PurgeExpired(ctx context.Context) (int64, error)

	LoadUpdateTransient(ctx context.Context) (*models.UpdateTransient, error)
	SaveUpdateTransient(ctx context.Context, t *models.UpdateTransient) error

	LastNotified(ctx context.Context, pluginID string) (string, error)
	SetLastNotified(ctx context.Context, pluginID, version string) error
}
