// Package config loads typescan settings from a YAML file.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/typescan/internal/model"
	"github.com/phobologic/typescan/internal/output"
)

// DefaultFile is looked up in the workspace root when no file is given.
const DefaultFile = ".typescan.yaml"

// Config holds settings shared by the CLI and the MCP server. Zero values
// mean "use the built-in default".
type Config struct {
	Concurrency int      `yaml:"concurrency"`
	MaxFileSize ByteSize `yaml:"max_file_size"`
	LogLevel    string   `yaml:"log_level"`
	Format      string   `yaml:"format"`
	SimpleNames bool     `yaml:"simple_names"`
	Kinds       []string `yaml:"kinds"`
	// Exclude holds extra gitignore-style patterns relative to the root.
	Exclude []string `yaml:"exclude"`
	// Gitignore disables the root .gitignore when explicitly false.
	Gitignore *bool `yaml:"gitignore"`
	// Presets are merged over the built-in catalog.
	Presets map[string][]string `yaml:"presets"`
}

// ByteSize is a size in bytes written either as a number or as a
// human-readable string such as "2 MB".
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return errors.Errorf("line %d: invalid size %q: %w", value.Line, s, err)
	}
	*b = ByteSize(n)
	return nil
}

// Load reads a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads DefaultFile from root, or returns an empty config when
// the file does not exist.
func LoadDefault(root string) (*Config, error) {
	path := filepath.Join(root, DefaultFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return Load(path)
}

func decode(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Concurrency < 0 {
		return errors.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if !output.Supported(c.Format) {
		return errors.Errorf("unknown format %q (want %s)", c.Format, strings.Join(output.Formats, " or "))
	}
	if c.LogLevel != "" {
		if _, err := ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	for _, k := range c.Kinds {
		if _, ok := model.ParseKind(k); !ok {
			return errors.Errorf("unknown kind %q", k)
		}
	}
	for name, targets := range c.Presets {
		if strings.TrimSpace(name) == "" {
			return errors.New("preset with empty name")
		}
		if len(targets) == 0 {
			return errors.Errorf("preset %q has no targets", name)
		}
	}
	return nil
}

// RespectGitignore reports whether the root .gitignore applies.
func (c *Config) RespectGitignore() bool {
	return c.Gitignore == nil || *c.Gitignore
}

// ParseLevel parses a slog level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// BuiltinPresets returns a fresh copy of the built-in predicate catalog.
func BuiltinPresets() map[string][]string {
	return map[string][]string{
		"aspnet-controllers": {
			"Microsoft.AspNetCore.Mvc.Controller",
			"Microsoft.AspNetCore.Mvc.ControllerBase",
		},
		"razor-pages": {
			"Microsoft.AspNetCore.Mvc.RazorPages.PageModel",
		},
		"signalr-hubs": {
			"Microsoft.AspNetCore.SignalR.Hub",
			"Microsoft.AspNetCore.SignalR.Hub`1",
		},
		"hosted-services": {
			"Microsoft.Extensions.Hosting.IHostedService",
			"Microsoft.Extensions.Hosting.BackgroundService",
		},
		"ef-dbcontexts": {
			"Microsoft.EntityFrameworkCore.DbContext",
		},
		"mediatr-handlers": {
			"MediatR.IRequestHandler`1",
			"MediatR.IRequestHandler`2",
			"MediatR.INotificationHandler`1",
		},
	}
}

// Catalog returns the built-in presets with the config's presets merged
// over them.
func (c *Config) Catalog() map[string][]string {
	out := BuiltinPresets()
	for name, targets := range c.Presets {
		out[name] = append([]string(nil), targets...)
	}
	return out
}

// PresetNames returns the catalog's names, sorted.
func PresetNames(presets map[string][]string) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
