package manifest

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"

	appErrors "github.com/vascofialho-nl/releasecheck/errors"
)

// headerScanLimit mirrors how much of a plugin file hosts scan for headers.
const headerScanLimit = 8 * 1024

var (
	versionHeaderRegex = regexp.MustCompile(`(?mi)^[ \t/*#@]*Version:(.*)$`)
	headerCleanupRegex = regexp.MustCompile(`\s*(?:\*/|\?>).*`)
)

// Reader returns the version of the installed package.
type Reader interface {
	ReadVersion(ctx context.Context) (string, error)
}

var _ Reader = (*FileReader)(nil)

// FileReader reads the installed version from a manifest file on disk.
type FileReader struct {
	path   string
	format Format
	field  string
	open   func(string) (io.ReadCloser, error)
}

// Params holds configuration for creating a FileReader.
type Params struct {
	Config   Config
	PluginID string
}

// New creates a FileReader for the manifest of the given plugin.
func New(p Params) *FileReader {
	p.Config.Defaults()
	return &FileReader{
		path:   p.Config.ResolvePath(p.PluginID),
		format: p.Config.Format,
		field:  p.Config.Field,
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// Path returns the manifest path the reader uses.
func (r *FileReader) Path() string {
	return r.path
}

// ReadVersion reads the installed version. Every failure is a configuration
// error: without a local version no check can proceed.
func (r *FileReader) ReadVersion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !r.format.IsValid() {
		return "", appErrors.Config(fmt.Sprintf("unsupported manifest format %q", r.format), nil)
	}

	data, err := r.read()
	if err != nil {
		return "", appErrors.Config(fmt.Sprintf("read manifest %q", r.path), err)
	}

	var version string
	switch r.format {
	case FormatPluginHeader:
		version, err = parsePluginHeader(data)
	case FormatJSON:
		version, err = parseJSON(data, r.field)
	case FormatYAML:
		version, err = parseYAML(data, r.field)
	case FormatTOML:
		version, err = parseTOML(data, r.field)
	case FormatRaw:
		version = strings.TrimSpace(string(data))
	}
	if err != nil {
		return "", appErrors.Config(fmt.Sprintf("parse manifest %q", r.path), err)
	}
	if version == "" {
		return "", appErrors.Config(fmt.Sprintf("manifest %q has no version", r.path), nil)
	}
	return version, nil
}

func (r *FileReader) read() ([]byte, error) {
	f, err := r.open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if r.format == FormatPluginHeader {
		return io.ReadAll(io.LimitReader(f, headerScanLimit))
	}
	return io.ReadAll(f)
}

func parsePluginHeader(data []byte) (string, error) {
	m := versionHeaderRegex.FindSubmatch(data)
	if len(m) < 2 {
		return "", fmt.Errorf("no Version header found")
	}
	return strings.TrimSpace(headerCleanupRegex.ReplaceAllString(string(m[1]), "")), nil
}

func parseJSON(data []byte, field string) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("invalid JSON")
	}
	res := gjson.GetBytes(data, field)
	if !res.Exists() {
		return "", fmt.Errorf("field %q not found", field)
	}
	if res.Type != gjson.String {
		return "", fmt.Errorf("field %q is not a string", field)
	}
	return strings.TrimSpace(res.String()), nil
}

func parseYAML(data []byte, field string) (string, error) {
	var obj map[string]any
	if err := yaml.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	return nestedString(obj, field)
}

func parseTOML(data []byte, field string) (string, error) {
	var obj map[string]any
	if err := toml.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	return nestedString(obj, field)
}

// nestedString looks up a dot-notation field, e.g. "tool.poetry.version".
func nestedString(obj map[string]any, field string) (string, error) {
	parts := strings.Split(field, ".")
	var current any = obj
	for i, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("field %q is not an object", strings.Join(parts[:i], "."))
		}
		v, exists := m[part]
		if !exists {
			return "", fmt.Errorf("field %q not found", field)
		}
		current = v
	}

	version, ok := current.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", field)
	}
	return strings.TrimSpace(version), nil
}
