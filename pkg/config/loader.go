package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the server configuration from path and merges it over the
// built-in defaults. A missing file is not an error: the defaults apply
// unchanged (the catalog file is the only required input).
//
// Pipeline: read → ExpandEnv ({{.VAR}}) → YAML unmarshal → merge over
// defaults → validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No config file found, using defaults", "path", path)
	case err != nil:
		return nil, NewLoadError(path, err)
	default:
		expanded := ExpandEnv(data)

		var user Config
		if err := yaml.Unmarshal(expanded, &user); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}

		// Merge user config into defaults (non-zero values override)
		if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("failed to merge config: %w", err))
		}
		slog.Info("Configuration loaded", "path", path)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
