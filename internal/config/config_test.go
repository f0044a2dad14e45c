package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
listen: ":9090"
data_dir: /var/lib/actionboard
storage:
  backend: sqlite
  path: /var/lib/actionboard/ab.db
session:
  secret: s3cret
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.Storage.Backend != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.Session.Cookie != "ab_session" {
		t.Fatalf("cookie = %q", cfg.Session.Cookie)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"empty data_dir", func(c *Config) { c.DataDir = "" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.Path = "" }},
		{"empty cookie", func(c *Config) { c.Session.Cookie = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("cfg = %+v", cfg)
	}

	path := filepath.Join(t.TempDir(), "actionboard.yml")
	if err := os.WriteFile(path, []byte("listen: \":7000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" {
		t.Fatalf("cfg = %+v", cfg)
	}
}
