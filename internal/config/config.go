// Package config loads actionboard.yml.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Storage struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the database file for the sqlite backend.
	Path string `yaml:"path"`
}

type Session struct {
	// Secret signs the session cookie. Generated at startup when empty,
	// which invalidates sessions across restarts.
	Secret string `yaml:"secret"`
	Cookie string `yaml:"cookie"`
}

type Config struct {
	Listen  string  `yaml:"listen"`
	DataDir string  `yaml:"data_dir"`
	Storage Storage `yaml:"storage"`
	Session Session `yaml:"session"`
}

func Default() Config {
	return Config{
		Listen:  ":8080",
		DataDir: "data",
		Storage: Storage{Backend: "file"},
		Session: Session{Cookie: "ab_session"},
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return FromYAML(raw)
}

// LoadOptional behaves like Load but falls back to defaults when the
// file does not exist.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// FromYAML parses raw on top of the defaults and validates the result.
func FromYAML(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch c.Storage.Backend {
	case "file":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Session.Cookie == "" {
		return fmt.Errorf("session.cookie must not be empty")
	}
	return nil
}
