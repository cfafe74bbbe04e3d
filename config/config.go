package config

import (
	"os"
	"strings"
	"time"

	"go.uber.org/config"

	"github.com/vascofialho-nl/releasecheck/clock"
	appErrors "github.com/vascofialho-nl/releasecheck/errors"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/manifest"
	"github.com/vascofialho-nl/releasecheck/models"
	"github.com/vascofialho-nl/releasecheck/notify"
	"github.com/vascofialho-nl/releasecheck/poller"
	"github.com/vascofialho-nl/releasecheck/registry"
	"github.com/vascofialho-nl/releasecheck/server"
)

// Environment variables that override secrets from the config files.
const (
	EnvReleaseToken = "RELEASECHECK_TOKEN"
	EnvDiscordToken = "DISCORD_TOKEN"
)

// HostConfig identifies the host platform in the User-Agent header.
type HostConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ReleaseConfig names the installed package and its release registry.
type ReleaseConfig struct {
	Owner       string `yaml:"owner"`
	Repository  string `yaml:"repository"`
	Slug        string `yaml:"slug"`
	PluginFile  string `yaml:"plugin_file"`
	PackageFile string `yaml:"package_file"`
	Name        string `yaml:"name"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`

	APIBase      string        `yaml:"api_base"`
	HomepageBase string        `yaml:"homepage_base"`
	Token        string        `yaml:"token"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Identity returns the immutable release identity.
func (r ReleaseConfig) Identity() models.ReleaseIdentity {
	return models.ReleaseIdentity{
		Owner:       r.Owner,
		Repository:  r.Repository,
		Slug:        r.Slug,
		PluginFile:  r.PluginFile,
		PackageFile: r.PackageFile,
		Name:        r.Name,
	}
}

// Registry returns the registry client configuration.
func (r ReleaseConfig) Registry() registry.Config {
	return registry.Config{
		APIBase:      r.APIBase,
		HomepageBase: r.HomepageBase,
		Token:        r.Token,
		ProbeTimeout: r.ProbeTimeout,
		FetchTimeout: r.FetchTimeout,
	}
}

// CacheConfig holds the transient store settings.
type CacheConfig struct {
	Path            string        `yaml:"path"`
	FlushDebounce   time.Duration `yaml:"flush_debounce"`
	AvailabilityTTL time.Duration `yaml:"availability_ttl"`
	ReleaseTTL      time.Duration `yaml:"release_ttl"`
}

// AppConfig holds all application configuration.
type AppConfig struct {
	Logger   logger.Config   `yaml:"logger"`
	Host     HostConfig      `yaml:"host"`
	Release  ReleaseConfig   `yaml:"release"`
	Manifest manifest.Config `yaml:"manifest"`
	Cache    CacheConfig     `yaml:"cache"`
	Poller   poller.Config   `yaml:"poller"`
	Server   server.Config   `yaml:"server"`
	Discord  notify.Config   `yaml:"discord"`
	Clock    clock.Config    `yaml:"clock"`
}

// Load reads configuration from the specified YAML files.
// Files are merged in order, with later files overriding earlier ones.
// Missing files are silently ignored.
func Load(files ...string) (*AppConfig, error) {
	opts := make([]config.YAMLOption, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			opts = append(opts, config.File(f))
		}
	}

	if len(opts) == 0 {
		return nil, os.ErrNotExist
	}

	provider, err := config.NewYAML(opts...)
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := provider.Get(config.Root).Populate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration with sensible defaults and applies
// environment overrides.
func LoadWithDefaults(files ...string) (*AppConfig, error) {
	cfg, err := Load(files...)
	if err != nil {
		return nil, err
	}
	cfg.Defaults()
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// Defaults applies default values to every section.
func (c *AppConfig) Defaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if len(c.Logger.OutputPaths) == 0 {
		c.Logger.OutputPaths = []string{"stdout"}
	}
	if c.Host.Name == "" {
		c.Host.Name = "WordPress"
	}
	if c.Host.Version == "" {
		c.Host.Version = "6.6"
	}
	if c.Release.Repository != "" && c.Release.Slug == "" {
		c.Release.Slug = c.Release.Repository
	}
	if c.Release.Slug != "" && c.Release.PluginFile == "" {
		c.Release.PluginFile = c.Release.Slug + ".php"
	}
	if c.Release.Slug != "" && c.Release.PackageFile == "" {
		c.Release.PackageFile = c.Release.Slug + ".zip"
	}
	if c.Release.APIBase == "" {
		c.Release.APIBase = registry.DefaultAPIBase
	}
	if c.Release.HomepageBase == "" {
		c.Release.HomepageBase = registry.DefaultHomepageBase
	}
	if c.Release.ProbeTimeout <= 0 {
		c.Release.ProbeTimeout = registry.DefaultProbeTimeout
	}
	if c.Release.FetchTimeout <= 0 {
		c.Release.FetchTimeout = registry.DefaultFetchTimeout
	}
	c.Manifest.Defaults()
	if c.Cache.Path == "" {
		c.Cache.Path = "data/releasecheck.db"
	}
	if c.Cache.AvailabilityTTL <= 0 {
		c.Cache.AvailabilityTTL = 60 * time.Second
	}
	c.Poller.Defaults()
	c.Server.Defaults()
}

// ApplyEnv overrides secrets from the environment.
func (c *AppConfig) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvReleaseToken)); v != "" {
		c.Release.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvDiscordToken)); v != "" {
		c.Discord.Token = v
	}
}

// Validate reports a configuration error for a missing release identity or
// an unknown manifest format.
func (c *AppConfig) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"release.owner", c.Release.Owner},
		{"release.repository", c.Release.Repository},
		{"release.slug", c.Release.Slug},
		{"release.plugin_file", c.Release.PluginFile},
		{"release.package_file", c.Release.PackageFile},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return appErrors.Config("missing "+strings.Join(missing, ", "), nil)
	}
	if c.Manifest.Format != "" && !c.Manifest.Format.IsValid() {
		return appErrors.Config("unknown manifest format "+string(c.Manifest.Format), nil)
	}
	return nil
}
