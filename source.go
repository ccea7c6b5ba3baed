// File: envresolver/source.go
package envresolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Source is a named provider of flat string key/value configuration.
// The resolver never assumes anything about where Load gets its data; a
// cached or retried source looks like any other source.
//
// A source's name is stable and human-readable. It is used as the default
// cache key and as provenance.
type Source interface {
	Name() string
	Load(ctx context.Context) (map[string]string, error)
}

// CacheReporter is implemented by sources that can report whether their
// most recent Load was served from a local cache rather than the
// underlying provider. The resolver records the flag as provenance.
type CacheReporter interface {
	ServedFromCache() bool
}

// fileSourcePrefix marks file-backed sources in provenance. The policy
// enforcer keys off this prefix in production mode.
const fileSourcePrefix = "file:"

// isFileSourceName reports whether a source name denotes a file-based
// local source.
func isFileSourceName(name string) bool {
	return strings.HasPrefix(name, fileSourcePrefix)
}

// envSource reads the process environment.
type envSource struct {
	prefix  string
	environ func() []string
}

// Env returns a source backed by the process environment.
func Env() Source {
	return &envSource{environ: os.Environ}
}

// EnvPrefix returns a source backed by the process environment, limited to
// variables carrying the prefix. The prefix is stripped from the returned
// keys, so MYAPP_PORT surfaces as PORT.
func EnvPrefix(prefix string) Source {
	return &envSource{prefix: prefix, environ: os.Environ}
}

func (s *envSource) Name() string { return "env" }

func (s *envSource) Load(_ context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range s.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if s.prefix != "" {
			if !strings.HasPrefix(k, s.prefix) {
				continue
			}
			k = strings.TrimPrefix(k, s.prefix)
		}
		out[k] = v
	}
	return out, nil
}

// mapSource serves a static map. Useful for tests and for injecting
// computed values with explicit provenance.
type mapSource struct {
	name   string
	values map[string]string
}

// Map returns a source serving a fixed set of values under the given name.
func Map(name string, values map[string]string) Source {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &mapSource{name: name, values: copied}
}

func (s *mapSource) Name() string { return s.name }

func (s *mapSource) Load(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

// funcSource adapts a plain function into a Source.
type funcSource struct {
	name string
	fn   func(ctx context.Context) (map[string]string, error)
}

// SourceFunc adapts a load function into a Source. This is the cheapest
// way to plug in a custom provider such as a secret-store client.
func SourceFunc(name string, fn func(ctx context.Context) (map[string]string, error)) Source {
	return &funcSource{name: name, fn: fn}
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) Load(ctx context.Context) (map[string]string, error) {
	return s.fn(ctx)
}

// fileSource reads configuration from a local file. Supported formats are
// dotenv (KEY=VALUE), TOML, JSON and YAML, detected by extension first and
// content second. Nested tables are flattened into ENV_STYLE keys by
// joining segments with underscores and upper-casing.
type fileSource struct {
	path string
}

// File returns a source backed by a configuration file. The source name is
// "file:<path>", which production policies treat as untrusted by default.
func File(path string) Source {
	return &fileSource{path: path}
}

func (s *fileSource) Name() string { return fileSourcePrefix + s.path }

func (s *fileSource) Load(_ context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", s.path, err)
	}

	format := detectFileFormat(s.path)
	if format == "" {
		format = detectFormatFromContent(data)
		if format == "" {
			return nil, fmt.Errorf("unable to determine config format for file '%s'", s.path)
		}
	}

	if format == "dotenv" {
		return parseDotenv(data), nil
	}

	parsed := make(map[string]any)
	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config file '%s': %w", s.path, err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file '%s': %w", s.path, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file '%s': %w", s.path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q for file '%s'", format, s.path)
	}

	out := make(map[string]string)
	flattenToEnvKeys(parsed, "", out)
	return out, nil
}

// detectFileFormat determines format from the file extension.
func detectFileFormat(path string) string {
	base := filepath.Base(path)
	if base == ".env" || strings.HasPrefix(base, ".env.") {
		return "dotenv"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".env":
		return "dotenv"
	case ".toml", ".tml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// detectFormatFromContent attempts to detect the format by parsing.
// JSON is tried first (strict), then YAML (a JSON superset), then TOML.
func detectFormatFromContent(data []byte) string {
	var jsonTest any
	if err := json.Unmarshal(data, &jsonTest); err == nil {
		return "json"
	}

	var yamlTest any
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		return "yaml"
	}

	var tomlTest any
	if err := toml.Unmarshal(data, &tomlTest); err == nil {
		return "toml"
	}

	return ""
}

// parseDotenv parses flat KEY=VALUE lines. Blank lines and #-comments are
// skipped, a leading "export " is tolerated, and single or double quotes
// around the value are stripped.
func parseDotenv(data []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		if k != "" {
			out[k] = v
		}
	}
	return out
}

// flattenToEnvKeys converts a nested map into flat ENV_STYLE string keys,
// joining path segments with underscores and upper-casing them.
func flattenToEnvKeys(nested map[string]any, prefix string, out map[string]string) {
	for key, value := range nested {
		name := strings.ToUpper(key)
		if prefix != "" {
			name = prefix + "_" + name
		}
		if sub, isMap := value.(map[string]any); isMap {
			flattenToEnvKeys(sub, name, out)
			continue
		}
		out[name] = stringifyFileValue(value)
	}
}

// stringifyFileValue renders a parsed file scalar back to its raw string
// form so every source hands the resolver the same shape.
func stringifyFileValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = stringifyFileValue(item)
		}
		return strings.Join(parts, DefaultArraySeparator)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
