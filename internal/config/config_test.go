package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.TokenTTL != 720*time.Hour {
		t.Errorf("TokenTTL = %v, want 720h", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.RefreshAfter != 7*24*time.Hour {
		t.Errorf("RefreshAfter = %v, want 168h", cfg.Auth.RefreshAfter)
	}
	if cfg.Heartbeat.Interval != 30*time.Second {
		t.Errorf("Heartbeat.Interval = %v, want 30s", cfg.Heartbeat.Interval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
version: "1"
services:
  local:
    name: Local Backend
    url: http://127.0.0.1:8899
    default: true
auth:
  refresh_after: 48h
heartbeat:
  interval: 10s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	svc, ok := cfg.Services["local"]
	if !ok {
		t.Fatal("service local not loaded")
	}
	if svc.URL != "http://127.0.0.1:8899" {
		t.Errorf("URL = %q", svc.URL)
	}
	if cfg.Auth.RefreshAfter != 48*time.Hour {
		t.Errorf("RefreshAfter = %v, want 48h", cfg.Auth.RefreshAfter)
	}
	if cfg.Heartbeat.Interval != 10*time.Second {
		t.Errorf("Interval = %v, want 10s", cfg.Heartbeat.Interval)
	}

	id, ok := cfg.DefaultService()
	if !ok || id != "local" {
		t.Errorf("DefaultService = %q, %v", id, ok)
	}
}

func TestAddRemoveServicePersists(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	if err := AddService("remote", ServiceConfig{Name: "Remote", URL: "https://agents.example.com"}); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if err := AddService("remote", ServiceConfig{}); err == nil {
		t.Error("duplicate AddService should fail")
	}

	// Reload from disk and check the service survived.
	Reset()
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.Services["remote"]; !ok {
		t.Fatal("service not persisted")
	}

	if err := RemoveService("remote"); err != nil {
		t.Fatalf("RemoveService: %v", err)
	}
	if err := RemoveService("remote"); err == nil {
		t.Error("removing a missing service should fail")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~/x/y", filepath.Join(home, "x/y")},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWatcherReloads(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("version: \"2\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Version != "2" {
			t.Errorf("Version = %q, want 2", cfg.Version)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload")
	}
}
