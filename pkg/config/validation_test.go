package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: "Level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "unknown content type",
			mutate:  func(c *Config) { c.Content.Type = "ftp" },
			wantErr: "Type",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Adapters.Web.Workers = 0 },
			wantErr: "Workers",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Adapters.Web.QueueSize = 0 },
			wantErr: "QueueSize",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Adapters.Web.Port = 70000 },
			wantErr: "Port",
		},
		{
			name:    "unknown schedule",
			mutate:  func(c *Config) { c.Adapters.Web.Schedule = "LIFO" },
			wantErr: "schedule",
		},
		{
			name:   "lowercase schedule",
			mutate: func(c *Config) { c.Adapters.Web.Schedule = "sff" },
		},
		{
			name:    "no adapter enabled",
			mutate:  func(c *Config) { c.Adapters.Web.Enabled = false },
			wantErr: "at least one adapter",
		},
		{
			name:    "missing base directory",
			mutate:  func(c *Config) { c.Content.Filesystem["path"] = "" },
			wantErr: "base directory",
		},
		{
			name: "persistent cache without path",
			mutate: func(c *Config) {
				c.Content.Cache.Enabled = true
			},
			wantErr: "content.cache.path",
		},
		{
			name: "in-memory cache without path",
			mutate: func(c *Config) {
				c.Content.Cache.Enabled = true
				c.Content.Cache.InMemory = true
			},
		},
		{
			name: "metrics port clashes with web port",
			mutate: func(c *Config) {
				c.Server.Metrics.Enabled = true
				c.Server.Metrics.Port = c.Adapters.Web.Port
			},
			wantErr: "already used",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
