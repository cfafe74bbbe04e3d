package clock

import "time"

// Config selects the clock implementation. An empty NTPServer means the
// system clock is trusted as is.
type Config struct {
	NTPServer    string        `yaml:"ntp_server"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// FromConfig returns an unstarted NTPClock when an NTP server is configured,
// otherwise nil and the system clock.
func FromConfig(cfg Config, l Logger) (*NTPClock, Clock) {
	if cfg.NTPServer == "" {
		return nil, System()
	}
	opts := []Option{WithServer(cfg.NTPServer)}
	if cfg.SyncInterval > 0 {
		opts = append(opts, WithInterval(cfg.SyncInterval))
	}
	if l != nil {
		opts = append(opts, WithLogger(l))
	}
	c := NewNTP(opts...)
	return c, c
}
