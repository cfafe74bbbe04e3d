package manifest

import (
	"path/filepath"
	"strings"
)

// Format names how the installed version is stored in the manifest.
type Format string

const (
	// FormatPluginHeader reads the "Version:" line of a plugin file header comment.
	FormatPluginHeader Format = "plugin-header"
	// FormatJSON reads a dot-path field from a JSON document (composer.json, package.json).
	FormatJSON Format = "json"
	// FormatYAML reads a dot-path field from a YAML document.
	FormatYAML Format = "yaml"
	// FormatTOML reads a dot-path field from a TOML document.
	FormatTOML Format = "toml"
	// FormatRaw treats the whole trimmed file as the version.
	FormatRaw Format = "raw"
)

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	switch f {
	case FormatPluginHeader, FormatJSON, FormatYAML, FormatTOML, FormatRaw:
		return true
	default:
		return false
	}
}

// Config describes where the installed manifest lives.
type Config struct {
	// PluginDir is the host's plugin root. The manifest path defaults to
	// {PluginDir}/{slug}/{plugin file}.
	PluginDir string `yaml:"plugin_dir"`
	// Path overrides the derived manifest path.
	Path   string `yaml:"path"`
	Format Format `yaml:"format"`
	// Field is the dot-notation path of the version for json/yaml/toml.
	Field string `yaml:"field"`
}

// Defaults applies default values to the config.
func (c *Config) Defaults() {
	if c.Format == "" {
		c.Format = FormatPluginHeader
	}
	if c.Field == "" {
		c.Field = "version"
	}
	if c.PluginDir == "" {
		c.PluginDir = "wp-content/plugins"
	}
}

// ResolvePath returns the manifest path for the given plugin id ("{slug}/{file}").
func (c Config) ResolvePath(pluginID string) string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	return filepath.Join(c.PluginDir, filepath.FromSlash(pluginID))
}
