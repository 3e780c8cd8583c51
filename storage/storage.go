package storage

import (
	"context"
	"time"
)

// Store is the durable key/value contract shared by identity, selection and
// the event backlog. Reads are snapshots; writes replace the full value.
// There is no cross-instance locking, so callers must never merge-write.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyDeviceID     = "pwk_device_id"
	KeyFirstVersion = "pwk_first_version"
	KeySelection    = "pwk_selection"
	KeyBacklog      = "pwk_event_backlog"
	KeyDeepLink     = "pwk_deep_link"
)

// Default TTLs per key, mirroring cookie lifetimes on the web side.
const (
	TTLDeviceID     = 730 * 24 * time.Hour
	TTLFirstVersion = 730 * 24 * time.Hour
	TTLSelection    = 24 * time.Hour
	TTLBacklog      = 24 * time.Hour
	TTLDeepLink     = 24 * time.Hour
)
