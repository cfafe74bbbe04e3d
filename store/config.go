package store

import "time"

// Config holds transient store configuration.
type Config struct {
	// Path is the on-disk snapshot of the in-memory database. Empty keeps
	// transients in memory only.
	Path          string        `yaml:"path"`
	FlushDebounce time.Duration `yaml:"flush_debounce"`
}
