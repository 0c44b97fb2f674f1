// Package config loads the on-disk YAML configuration a trackerctl session
// runs with, then lets command-line flags override individual fields — a
// two-layer shape, with the file layer read through gopkg.in/yaml.v3
// instead of hardcoded defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SearchRoot is one entry of the ordered search-root list, as read from
// YAML before it's translated into modulepath.SearchRoot (which also
// carries the Index modulepath derives from list position).
type SearchRoot struct {
	Dir string `yaml:"dir"`
	// NoTypeCheck opts every file under this root out of type checking
	// (e.g. a vendored third-party tree). Defaults to false, so an
	// unconfigured root is type-checked.
	NoTypeCheck bool `yaml:"no_type_check"`
}

// Config is the full on-disk configuration for a tracking session.
// BuildToolVersion selects which generation of the build tool's surface
// to speak (1 or 2); lazy construction needs version 2.
type Config struct {
	SearchRoots      []SearchRoot `yaml:"search_roots"`
	ArtifactRoot     string       `yaml:"artifact_root"`
	BuildCommand     string       `yaml:"build_command"`
	BuildToolLog     string       `yaml:"build_tool_log"`
	BuildToolVersion int          `yaml:"build_tool_version"`
	TargetPattern    []string     `yaml:"target_patterns"`
	Lazy             bool         `yaml:"lazy"`
	Verbose          bool         `yaml:"verbose"`
	SharedStorePath  string       `yaml:"shared_store_path"`
	QueryServer      QueryServer  `yaml:"query_server"`
}

// QueryServer configures the optional read-only diagnostics HTTP surface.
// AllowedOrigins lists the origins cross-site callers may use; empty
// means any origin.
type QueryServer struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ArtifactRoot:     ".buildtrack/artifacts",
		BuildToolVersion: 2,
		Lazy:             false,
		Verbose:          false,
		QueryServer:      QueryServer{Enabled: false, Addr: "127.0.0.1:8787"},
	}
}

// Load reads and parses the YAML file at path. A missing file is not an
// error: it yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyFlagOverrides layers non-zero-value flag overrides on top of cfg,
// so flags win over file-sourced defaults. Callers pass pointers so an
// unset flag (nil) leaves the file value untouched.
func ApplyFlagOverrides(cfg Config, artifactRoot, buildCommand *string, lazy, verbose *bool) Config {
	if artifactRoot != nil && *artifactRoot != "" {
		cfg.ArtifactRoot = *artifactRoot
	}
	if buildCommand != nil && *buildCommand != "" {
		cfg.BuildCommand = *buildCommand
	}
	if lazy != nil && *lazy {
		cfg.Lazy = *lazy
	}
	if verbose != nil && *verbose {
		cfg.Verbose = *verbose
	}
	return cfg
}
