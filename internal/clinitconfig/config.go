// Package clinitconfig loads the ClassInitCounter run configuration from a
// YAML file, with environment variable overrides layered on top, in the
// same load-then-override-then-validate shape as most of this pack's
// config loaders.
package clinitconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs RunProgram needs that aren't derivable
// from the loaded program itself.
type Config struct {
	RootType       string   `yaml:"root_type"`
	SafeEscapes    []string `yaml:"safe_escapes"`
	NumWorkers     int      `yaml:"num_workers"`
	RestrictMethod []string `yaml:"restrict_methods"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
}

// Load reads configFile (if non-empty), applies defaults for anything
// left unset, layers environment overrides on top, and validates the
// result.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := loadFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("clinitconfig: loading %s: %w", configFile, err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("clinitconfig: invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = 4
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	cfg.RootType = getEnvString("CLINIT_ROOT_TYPE", cfg.RootType)
	cfg.NumWorkers = getEnvInt("CLINIT_NUM_WORKERS", cfg.NumWorkers)
	cfg.LogLevel = getEnvString("CLINIT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("CLINIT_LOG_FORMAT", cfg.LogFormat)
	if refs := getEnvString("CLINIT_SAFE_ESCAPES", ""); refs != "" {
		cfg.SafeEscapes = append(cfg.SafeEscapes, strings.Split(refs, ",")...)
	}
	if methods := getEnvString("CLINIT_RESTRICT_METHODS", ""); methods != "" {
		cfg.RestrictMethod = strings.Split(methods, ",")
	}
}

// Validate checks that Config is internally consistent.
func Validate(cfg *Config) error {
	var errs []string
	if cfg.RootType == "" {
		errs = append(errs, "root_type must be set")
	}
	if cfg.NumWorkers <= 0 {
		errs = append(errs, "num_workers must be positive")
	}
	if cfg.NumWorkers > 256 {
		errs = append(errs, "num_workers too large (max 256)")
	}
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Sprintf("invalid log_level: %s", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid log_format: %s", cfg.LogFormat))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
