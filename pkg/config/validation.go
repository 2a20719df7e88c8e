package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittoweb/pkg/admission"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.Web.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if _, err := admission.ParseSchedule(cfg.Adapters.Web.Schedule); err != nil {
		return fmt.Errorf("adapters.web.schedule: %w", err)
	}

	if cfg.Content.Type == "filesystem" {
		if path, _ := cfg.Content.Filesystem["path"].(string); path == "" {
			return fmt.Errorf("content.filesystem.path: base directory is required")
		}
	}

	if cfg.Content.Cache.Enabled && !cfg.Content.Cache.InMemory && cfg.Content.Cache.Path == "" {
		return fmt.Errorf("content.cache.path: required unless in_memory is set")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.Web.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the web adapter", cfg.Server.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
