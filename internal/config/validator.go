package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Iron-Ham/cibox/internal/container"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "runtime.poll_interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// Missing credentials such as backend.git_url are not checked here; the
// pipelines that need them report errors.ErrMissingConfiguration.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateContainer()...)
	errors = append(errors, c.validateRuntime()...)
	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateContainer validates the ContainerConfig
func (c *Config) validateContainer() []ValidationError {
	var errors []ValidationError

	if !container.ValidName(c.Container.Name) {
		errors = append(errors, ValidationError{
			Field:   "container.name",
			Value:   c.Container.Name,
			Message: "must start with a letter or digit and contain only letters, digits, '_', '.' or '-'",
		})
	}

	if _, err := container.ParseSpec("x", c.Container.Data); err != nil {
		errors = append(errors, ValidationError{
			Field:   "container.data",
			Value:   c.Container.Data,
			Message: "must be distribution,release,architecture",
		})
	}

	return errors
}

// validateRuntime validates the RuntimeConfig
func (c *Config) validateRuntime() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidDrivers(), c.Runtime.Driver) {
		errors = append(errors, ValidationError{
			Field:   "runtime.driver",
			Value:   c.Runtime.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDrivers(), ", ")),
		})
	}

	if c.Runtime.Driver == "lxc" && !filepath.IsAbs(c.Runtime.LXCPath) {
		errors = append(errors, ValidationError{
			Field:   "runtime.lxc_path",
			Value:   c.Runtime.LXCPath,
			Message: "must be an absolute path",
		})
	}

	// Poll interval must be positive and reasonable (10ms to 10s)
	if c.Runtime.PollIntervalMs < 10 || c.Runtime.PollIntervalMs > 10000 {
		errors = append(errors, ValidationError{
			Field:   "runtime.poll_interval_ms",
			Value:   c.Runtime.PollIntervalMs,
			Message: "must be between 10 and 10000",
		})
	}

	if c.Runtime.NetworkTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.network_timeout_seconds",
			Value:   c.Runtime.NetworkTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Runtime.ShutdownTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.shutdown_timeout_seconds",
			Value:   c.Runtime.ShutdownTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Runtime.LockDir == "" {
		errors = append(errors, ValidationError{
			Field:   "runtime.lock_dir",
			Value:   c.Runtime.LockDir,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateBackend validates the BackendConfig
func (c *Config) validateBackend() []ValidationError {
	var errors []ValidationError

	// The checkout is addressed through the container rootfs, so it must be absolute
	if !filepath.IsAbs(c.Backend.CheckoutDir) || filepath.Clean(c.Backend.CheckoutDir) == "/" {
		errors = append(errors, ValidationError{
			Field:   "backend.checkout_dir",
			Value:   c.Backend.CheckoutDir,
			Message: "must be an absolute path below /",
		})
	}

	if strings.TrimSpace(c.Backend.Branch) == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.branch",
			Value:   c.Backend.Branch,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
