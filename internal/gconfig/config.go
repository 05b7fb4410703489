// Package gconfig handles configuration via environment variables, an
// optional config file, and CLI flag overrides, mirroring the teacher's
// pkg/config/config.go (env-var loading with a LoadFromEnv constructor and
// a Validate method) generalized to this module's CLI-only surface — there
// is no server here, so the "Server" section below covers the CLI's
// bench/migration-facing settings instead of Bolt/HTTP ports.
//
// Layered precedence, highest to lowest: CLI flags > environment variables
// (SQLITEGRAPH_ prefix) > config file (TOML or YAML) > defaults. The layer
// merge is done with github.com/spf13/viper, matching the rest of the
// pack's config-layering convention; TOML files are parsed with
// github.com/BurntSushi/toml and YAML ones with gopkg.in/yaml.v3, both fed
// into viper as alternate config types.
package gconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the CLI and core need, loaded in layers.
type Config struct {
	// Database settings
	Database DatabaseConfig

	// Runtime settings for the CLI surface — the "Server"-equivalent
	// section the teacher's config carries even though this module has
	// no listening server.
	Runtime RuntimeConfig

	// Feature flags for optional/experimental behavior.
	Features FeatureFlagsConfig
}

// DatabaseConfig controls which backend is opened and where its data lives.
type DatabaseConfig struct {
	// Backend selects "sql" (sqlengine, SQLite-backed) or "native"
	// (native, the in-process file format).
	Backend string
	// Path is the database file path (sqlengine) or the single native
	// graph file path (native).
	Path string
	// PragmaOverrides is a list of "name=value" SQLite PRAGMA overrides
	// applied at Open() time, beyond the engine's own defaults.
	PragmaOverrides []string
}

// RuntimeConfig groups CLI-facing operational settings. Its fields are
// loaded (and ShadowCompareWorkers is validated) here, but no other package
// reads them: internal/bench resolves its file from SQLITEGRAPH_BENCH_FILE
// itself, internal/migrate's CompareShadow uses a fixed concurrency limit,
// and the safety-check subcommand takes its defaults from its own flags.
type RuntimeConfig struct {
	// BenchFile is a bench gate JSON path; internal/bench does not read it.
	BenchFile string
	// ShadowCompareWorkers must be at least 1; CompareShadow does not read
	// it.
	ShadowCompareWorkers int
	// SafetyStrict and SafetyDeep are loaded but not applied to the
	// safety-check subcommand's --strict/--deep defaults.
	SafetyStrict bool
	SafetyDeep   bool
}

// FeatureFlagsConfig holds optional/experimental feature toggles.
type FeatureFlagsConfig struct {
	// PatternFastPath is loaded but not read by internal/pattern, which
	// always uses its roaring-bitmap path.
	PatternFastPath bool
}

const envPrefix = "SQLITEGRAPH"

// LoadFromEnv builds a Config by layering defaults, an optional config
// file (TOML or YAML, selected by extension, found at configPath if
// non-empty), and SQLITEGRAPH_-prefixed environment variables, in that
// increasing order of precedence. CLI flags are applied afterward by the
// caller, which assigns the flag values onto the returned Config's fields
// (cmd/sqlitegraph's openEngine) — viper's own flag binding is not used
// here since cmd/sqlitegraph's subcommands each define a different flag
// subset.
func LoadFromEnv(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		if err := mergeConfigFile(v, configPath); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Backend:         v.GetString("database.backend"),
			Path:            v.GetString("database.path"),
			PragmaOverrides: v.GetStringSlice("database.pragma_overrides"),
		},
		Runtime: RuntimeConfig{
			BenchFile:            v.GetString("runtime.bench_file"),
			ShadowCompareWorkers: v.GetInt("runtime.shadow_compare_workers"),
			SafetyStrict:         v.GetBool("runtime.safety_strict"),
			SafetyDeep:           v.GetBool("runtime.safety_deep"),
		},
		Features: FeatureFlagsConfig{
			PatternFastPath: v.GetBool("features.pattern_fast_path"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.backend", "sql")
	v.SetDefault("database.path", "./sqlitegraph.db")
	v.SetDefault("database.pragma_overrides", []string{})

	v.SetDefault("runtime.bench_file", "")
	v.SetDefault("runtime.shadow_compare_workers", 8)
	v.SetDefault("runtime.safety_strict", false)
	v.SetDefault("runtime.safety_deep", false)

	v.SetDefault("features.pattern_fast_path", true)
}

// mergeConfigFile reads configPath as TOML or YAML (chosen by file
// extension) and merges it into v. TOML is parsed with BurntSushi/toml
// into a generic map first since viper's own TOML support is decoder-only
// for structs, not arbitrary merge; YAML is parsed with yaml.v3 the same
// way.
func mergeConfigFile(v *viper.Viper, configPath string) error {
	ext := strings.ToLower(configPath[strings.LastIndex(configPath, ".")+1:])

	raw := map[string]interface{}{}
	switch ext {
	case "toml":
		if _, err := toml.DecodeFile(configPath, &raw); err != nil {
			return fmt.Errorf("gconfig: decode toml %s: %w", configPath, err)
		}
	case "yaml", "yml":
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("gconfig: read %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("gconfig: decode yaml %s: %w", configPath, err)
		}
	default:
		return fmt.Errorf("gconfig: unsupported config file extension %q", ext)
	}

	if err := v.MergeConfigMap(raw); err != nil {
		return fmt.Errorf("gconfig: merge config %s: %w", configPath, err)
	}
	return nil
}

// Validate checks the configuration for logical errors, mirroring the
// teacher's Config.Validate: called after LoadFromEnv and before the
// config is used to open an engine.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "sql", "native":
	default:
		return fmt.Errorf("gconfig: invalid database backend %q (want \"sql\" or \"native\")", c.Database.Backend)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("gconfig: database path must not be empty")
	}
	if c.Runtime.ShadowCompareWorkers <= 0 {
		return fmt.Errorf("gconfig: shadow compare workers must be positive, got %d", c.Runtime.ShadowCompareWorkers)
	}
	for _, kv := range c.Database.PragmaOverrides {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("gconfig: malformed pragma override %q (want name=value)", kv)
		}
	}
	return nil
}

// String returns a safe, loggable summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Backend: %s, Path: %s, ShadowWorkers: %d}",
		c.Database.Backend, c.Database.Path, c.Runtime.ShadowCompareWorkers)
}
