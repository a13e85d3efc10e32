package config

import (
	"fmt"
	"strings"
)

// FieldError is a validation failure of one configuration field.
type FieldError struct {
	// Field is the dotted path, e.g. "broker.backend".
	Field   string
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error of a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks a configuration with defaults applied and returns a
// ValidationError listing every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError
	errs = append(errs, validateBroker(&cfg.Broker)...)
	errs = append(errs, validateExport(&cfg.Export)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateBroker(cfg *BrokerConfig) []FieldError {
	var errs []FieldError
	switch cfg.Backend {
	case BackendMemory, BackendSQLite, BackendBadger:
	default:
		errs = append(errs, FieldError{
			Field:   "broker.backend",
			Message: fmt.Sprintf("must be one of memory, sqlite, badger (got %q)", cfg.Backend),
		})
	}
	if cfg.Backend == BackendMemory && cfg.Path != "" {
		errs = append(errs, FieldError{Field: "broker.path", Message: "must be empty for the memory backend"})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "broker.busy_timeout", Message: "must not be negative"})
	}
	return errs
}

func validateExport(cfg *ExportConfig) []FieldError {
	var errs []FieldError
	if len(cfg.Fields) > 0 && len(cfg.Exclude) > 0 {
		errs = append(errs, FieldError{Field: "export.exclude", Message: "cannot be combined with export.fields"})
	}
	if cfg.Compression != nil && (*cfg.Compression < 0 || *cfg.Compression > 9) {
		errs = append(errs, FieldError{
			Field:   "export.compression",
			Message: fmt.Sprintf("must be between 0 and 9 (got %d)", *cfg.Compression),
		})
	}
	if strings.Contains(cfg.Stream, "/") {
		errs = append(errs, FieldError{Field: "export.stream", Message: "must not contain '/'"})
	}
	return errs
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error (got %q)", cfg.Level),
		})
	}
	switch cfg.Format {
	case "json", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be json or console (got %q)", cfg.Format),
		})
	}
	return errs
}
