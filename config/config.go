// Package config loads a registry.Options from YAML, for embedding hosts
// that keep engine settings in a config file rather than building Options
// by hand.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/halvard/stencil/registry"
)

// File is the on-disk shape of an engine config file.
type File struct {
	// AutoescapeSuffixes mirrors registry.Options.AutoescapeSuffixes.
	AutoescapeSuffixes []string `yaml:"autoescape_suffixes"`
	// MaxChainDepth mirrors registry.Options.MaxChainDepth.
	MaxChainDepth int `yaml:"max_chain_depth"`
	// MaxMacroDepth mirrors registry.Options.MaxMacroDepth.
	MaxMacroDepth int `yaml:"max_macro_depth"`
	// LogLevel selects the level for Logger: one of debug, info, warn,
	// error. Empty defaults to info.
	LogLevel string `yaml:"log_level"`
}

// ToOptions converts a File into a registry.Options.
func (f File) ToOptions() registry.Options {
	return registry.Options{
		AutoescapeSuffixes: f.AutoescapeSuffixes,
		MaxChainDepth:      f.MaxChainDepth,
		MaxMacroDepth:      f.MaxMacroDepth,
	}
}

// Load reads and parses a YAML config file from path.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and parses YAML config from r.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("config: decode: %w", err)
	}
	return f, nil
}

// Logger builds a structured logger at the level named by f.LogLevel,
// defaulting to info for an empty or unrecognized value.
func (f File) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(f.LogLevel),
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
