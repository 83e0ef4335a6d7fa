package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatline.yaml")
	body := "host: 0.0.0.0\nport: 7000\npoll_timeout: 2s\nstore:\n  backend: sqlite\n  sqlite_path: /tmp/x.db\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 7000 {
		t.Fatalf("addr = %s", cfg.Addr())
	}
	if cfg.PollTimeout != 2*time.Second {
		t.Fatalf("poll_timeout = %s", cfg.PollTimeout)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "/tmp/x.db" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	// Values absent from the file keep their defaults.
	if cfg.LogLevel != "info" || cfg.Store.CredentialsFile != "credentials.csv" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "chatline.yaml")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != Default().Port {
		t.Fatalf("port = %d, want default", cfg.Port)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}
