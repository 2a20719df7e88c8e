package config

import (
	"testing"
	"time"

	"github.com/marmos91/dittoweb/pkg/adapter/web"
)

func TestApplyDefaults_Empty(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Server.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected metrics port %d, got %d", DefaultMetricsPort, cfg.Server.Metrics.Port)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected content type 'filesystem', got %q", cfg.Content.Type)
	}
	if cfg.Content.Cache.TTL != 30*time.Second {
		t.Errorf("Expected cache TTL 30s, got %v", cfg.Content.Cache.TTL)
	}

	w := cfg.Adapters.Web
	if w.Port != DefaultWebPort {
		t.Errorf("Expected web port %d, got %d", DefaultWebPort, w.Port)
	}
	if w.Index != "index.html" {
		t.Errorf("Expected index 'index.html', got %q", w.Index)
	}
	if w.PeekTimeout != 10*time.Second {
		t.Errorf("Expected peek timeout 10s, got %v", w.PeekTimeout)
	}
	if w.AcceptRate != 0 {
		t.Errorf("Expected accept throttle off, got %d", w.AcceptRate)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Logging: LoggingConfig{Level: "debug", Format: "json"},
		Content: ContentConfig{
			Type:       "memory",
			Filesystem: map[string]any{"path": "/srv"},
		},
		Adapters: AdaptersConfig{
			Web: web.WebConfig{
				Port:        8081,
				Workers:     4,
				QueueSize:   32,
				Schedule:    "SFF",
				PeekTimeout: time.Second,
			},
		},
	}
	ApplyDefaults(&cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Content.Type != "memory" || cfg.Content.Filesystem["path"] != "/srv" {
		t.Errorf("Content settings were overwritten: %+v", cfg.Content)
	}

	w := cfg.Adapters.Web
	if w.Port != 8081 || w.Workers != 4 || w.QueueSize != 32 || w.Schedule != "SFF" || w.PeekTimeout != time.Second {
		t.Errorf("Web settings were overwritten: %+v", w)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Adapters.Web.Enabled {
		t.Error("Expected web adapter enabled in default config")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
}
