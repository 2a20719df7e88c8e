package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"

content:
  type: "filesystem"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level normalized to 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if !cfg.Adapters.Web.Enabled {
		t.Error("Expected web adapter enabled by default")
	}
	if cfg.Adapters.Web.Port != 10000 {
		t.Errorf("Expected default web port 10000, got %d", cfg.Adapters.Web.Port)
	}
	if cfg.Adapters.Web.Workers != 1 || cfg.Adapters.Web.QueueSize != 1 {
		t.Errorf("Expected 1 worker and queue size 1, got %d and %d",
			cfg.Adapters.Web.Workers, cfg.Adapters.Web.QueueSize)
	}
	if cfg.Adapters.Web.Schedule != "FIFO" {
		t.Errorf("Expected default schedule FIFO, got %q", cfg.Adapters.Web.Schedule)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A path inside a temp dir keeps the user's own config out of the test
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected default content type 'filesystem', got %q", cfg.Content.Type)
	}
	if path := cfg.Content.Filesystem["path"]; path != "." {
		t.Errorf("Expected default base directory '.', got %v", path)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "logging:\n  level: [unterminated\n")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_WebSettings(t *testing.T) {
	configPath := writeConfig(t, `
content:
  type: "filesystem"
  filesystem:
    path: "/srv/www"

adapters:
  web:
    port: 8080
    workers: 8
    queue_size: 16
    schedule: "sff"
    peek_timeout: 2s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	web := cfg.Adapters.Web
	if !web.Enabled {
		t.Error("Expected web adapter enabled when only its settings are given")
	}
	if web.Port != 8080 || web.Workers != 8 || web.QueueSize != 16 {
		t.Errorf("Unexpected web settings: port=%d workers=%d queue=%d", web.Port, web.Workers, web.QueueSize)
	}
	if web.Schedule != "sff" {
		t.Errorf("Expected schedule preserved as 'sff', got %q", web.Schedule)
	}
	if web.PeekTimeout != 2*time.Second {
		t.Errorf("Expected peek_timeout 2s, got %v", web.PeekTimeout)
	}
	if path := cfg.Content.Filesystem["path"]; path != "/srv/www" {
		t.Errorf("Expected base directory '/srv/www', got %v", path)
	}
}

func TestLoad_WebDisabled(t *testing.T) {
	configPath := writeConfig(t, `
adapters:
  web:
    enabled: false
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error when no adapter is enabled")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
adapters:
  web:
    workers: 2
`)

	t.Setenv("DITTOWEB_ADAPTERS_WEB_WORKERS", "6")
	t.Setenv("DITTOWEB_ADAPTERS_WEB_SCHEDULE", "SFF")
	t.Setenv("DITTOWEB_CONTENT_FILESYSTEM_PATH", "/var/www")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Adapters.Web.Workers != 6 {
		t.Errorf("Expected workers overridden to 6, got %d", cfg.Adapters.Web.Workers)
	}
	if cfg.Adapters.Web.Schedule != "SFF" {
		t.Errorf("Expected schedule overridden to SFF, got %q", cfg.Adapters.Web.Schedule)
	}
	if path := cfg.Content.Filesystem["path"]; path != "/var/www" {
		t.Errorf("Expected base directory from environment, got %v", path)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
adapters:
  web:
    schedule: "LIFO"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for unknown schedule")
	}

	cfg, err := LoadUnvalidated(configPath)
	if err != nil {
		t.Fatalf("LoadUnvalidated should not validate: %v", err)
	}
	if cfg.Adapters.Web.Schedule != "LIFO" {
		t.Errorf("Expected raw schedule 'LIFO', got %q", cfg.Adapters.Web.Schedule)
	}
}

func TestGetConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if dir := GetConfigDir(); dir != filepath.Join(xdg, "dittoweb") {
		t.Errorf("Expected XDG config dir, got %q", dir)
	}
	if path := GetDefaultConfigPath(); path != filepath.Join(xdg, "dittoweb", "config.yaml") {
		t.Errorf("Unexpected default config path %q", path)
	}
	if ConfigExists() {
		t.Error("Expected no config file under a fresh XDG dir")
	}
}
