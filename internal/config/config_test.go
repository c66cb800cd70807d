package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labexec.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8090" || cfg.Scheduler.PollInterval != 5*time.Second || cfg.Pool.Workers != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
db_path: /var/lib/labexec/labexec.db
galaxy:
  url: https://usegalaxy.org
  call_timeout: 2m
  link_data: true
scheduler:
  poll_interval: 30s
  cleanup_after: 72h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" || cfg.DBPath != "/var/lib/labexec/labexec.db" {
		t.Errorf("top-level = %+v", cfg)
	}
	if cfg.Galaxy.URL != "https://usegalaxy.org" || cfg.Galaxy.CallTimeout != 2*time.Minute || !cfg.Galaxy.LinkData {
		t.Errorf("galaxy = %+v", cfg.Galaxy)
	}
	// Unset fields keep their defaults.
	if cfg.Galaxy.MaxRetries != 3 || cfg.LogLevel != "info" {
		t.Errorf("defaults lost: retries=%d level=%s", cfg.Galaxy.MaxRetries, cfg.LogLevel)
	}
	if cfg.Scheduler.PollInterval != 30*time.Second || cfg.Scheduler.CleanupAfter != 72*time.Hour {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "addr: [", "parse config"},
		{"negative cleanup", "scheduler:\n  cleanup_after: -1h\n", "cleanup_after"},
		{"empty url", "galaxy:\n  url: \"\"\n", "galaxy.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvGalaxyURL, "https://galaxy.example.org")
	t.Setenv(EnvGalaxyAPIKey, "secret")
	cfg := DefaultServerConfig()
	cfg.ApplyEnv()
	if cfg.Galaxy.URL != "https://galaxy.example.org" || cfg.Galaxy.APIKey != "secret" {
		t.Errorf("galaxy = %+v", cfg.Galaxy)
	}
}

func TestServerURL(t *testing.T) {
	t.Setenv(EnvServerURL, "")
	if got := ServerURL("http://localhost:8090"); got != "http://localhost:8090" {
		t.Errorf("ServerURL() = %q", got)
	}
	t.Setenv(EnvServerURL, "http://labexec:8090")
	if got := ServerURL("http://localhost:8090"); got != "http://labexec:8090" {
		t.Errorf("ServerURL() = %q", got)
	}
}
