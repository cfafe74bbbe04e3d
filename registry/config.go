package registry

import (
	"net/http"
	"time"
)

const (
	DefaultAPIBase      = "https://api.github.com"
	DefaultHomepageBase = "https://github.com"
	DefaultProbeTimeout = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Config holds release registry client configuration.
type Config struct {
	APIBase      string        `yaml:"api_base"`
	HomepageBase string        `yaml:"homepage_base"`
	Token        string        `yaml:"token"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	HTTPClient   *http.Client  `yaml:"-"`
}

// Defaults applies default values to the config.
func (c *Config) Defaults() {
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.HomepageBase == "" {
		c.HomepageBase = DefaultHomepageBase
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
}
