package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if the file already exists
// unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// configSection pairs a top-level key with the comment written above it.
type configSection struct {
	key     string
	comment string
	value   any
}

// generateYAMLWithComments renders cfg as YAML, one top-level section at a
// time so each gets an explanatory comment.
func generateYAMLWithComments(cfg *Config) (string, error) {
	sections := []configSection{
		{
			key:     "logging",
			comment: "Logging: level is DEBUG, INFO, WARN or ERROR; format is text or json;\noutput is stdout, stderr or a file path.",
			value:   cfg.Logging,
		},
		{
			key:     "server",
			comment: "Server-wide settings. The metrics endpoint serves Prometheus data on /metrics.",
			value:   cfg.Server,
		},
		{
			key:     "content",
			comment: "Document root. type selects filesystem, memory or s3; only the matching\nsection is used. The cache remembers target sizes for smallest-file-first admission.",
			value:   cfg.Content,
		},
		{
			key:     "adapters",
			comment: "Protocol adapters. schedule is FIFO (arrival order) or SFF (smallest\nrequested file first). queue_size bounds admitted requests waiting for a worker.",
			value:   cfg.Adapters,
		},
	}

	var b strings.Builder
	b.WriteString("# DittoWeb Configuration File\n")
	b.WriteString("#\n")
	b.WriteString("# Values can be overridden with DITTOWEB_* environment variables,\n")
	b.WriteString("# for example DITTOWEB_ADAPTERS_WEB_WORKERS=8.\n")

	for _, section := range sections {
		out, err := yaml.Marshal(map[string]any{section.key: section.value})
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s section: %w", section.key, err)
		}

		b.WriteString("\n")
		for _, line := range strings.Split(section.comment, "\n") {
			b.WriteString("# ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.Write(out)
	}

	return b.String(), nil
}
