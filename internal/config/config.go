package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/cibox/internal/catalog"
	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/lifecycle"
	"github.com/Iron-Ham/cibox/internal/logging"
)

// Config represents the complete cibox configuration
type Config struct {
	Container ContainerConfig `mapstructure:"container"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Export    ExportConfig    `mapstructure:"export"`
	Pipelines PipelinesConfig `mapstructure:"pipelines"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ContainerConfig selects the sandbox container
type ContainerConfig struct {
	// Name is the runtime identifier of the container (default: "test")
	Name string `mapstructure:"name"`
	// Data is the "distribution,release,architecture" triple used by create
	// (default: "ubuntu,xenial,amd64")
	Data string `mapstructure:"data"`
}

// RuntimeConfig controls the container runtime and lifecycle timings
type RuntimeConfig struct {
	// Driver is the container backend: "lxc" or "docker" (default: "lxc")
	Driver string `mapstructure:"driver"`
	// LXCPath is the lxc container directory (default: "/var/lib/lxc")
	LXCPath string `mapstructure:"lxc_path"`
	// PollIntervalMs is the pause between state reads while booting (default: 100)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// NetworkTimeoutSeconds bounds the wait for a network address (default: 30)
	NetworkTimeoutSeconds int `mapstructure:"network_timeout_seconds"`
	// ShutdownTimeoutSeconds bounds the graceful shutdown (default: 30)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	// LockDir holds the per-container lock files (default: "/tmp/cibox-locks")
	LockDir string `mapstructure:"lock_dir"`
}

// BackendConfig describes the application checkout inside the container
type BackendConfig struct {
	// GitURL is the credentialed clone URL, usually supplied via GIT_URL
	GitURL string `mapstructure:"git_url"`
	// Branch is the branch cloned by clone_backend (default: "develop")
	Branch string `mapstructure:"branch"`
	// CheckoutDir is the absolute checkout path inside the container
	CheckoutDir string `mapstructure:"checkout_dir"`
	// Requirements is the pip manifest, relative to CheckoutDir
	Requirements string `mapstructure:"requirements"`
}

// DatabaseConfig controls the database bootstrap of setup_backend
type DatabaseConfig struct {
	Name string `mapstructure:"name"`
	User string `mapstructure:"user"`
	// Password for the database role. Empty generates a random one per run.
	Password string `mapstructure:"password"`
	// Locale is generated by provision and used for collation
	Locale string `mapstructure:"locale"`
	// ServiceUnit is the versioned database service started by provision
	ServiceUnit string `mapstructure:"service_unit"`
}

// SecretsConfig controls secrets staging
type SecretsConfig struct {
	// File is copied into StagingDir by create
	File string `mapstructure:"file"`
	// StagingDir is copied into the checkout by clone_backend
	StagingDir string `mapstructure:"staging_dir"`
}

// ExportConfig controls rootfs export
type ExportConfig struct {
	// Archive is the gzip tarball written by export
	Archive string `mapstructure:"archive"`
}

// PipelinesConfig controls pipeline customization
type PipelinesConfig struct {
	// ExtensionsFile is a YAML or JSONC file of extra steps. Empty disables.
	ExtensionsFile string `mapstructure:"extensions_file"`
}

// MetricsConfig controls step metrics
type MetricsConfig struct {
	// Textfile is where step metrics are written in the node-exporter
	// textfile format after each pipeline command. Empty disables.
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where cibox.log is written (default: StateDir()). Empty logs
	// warnings and errors to stderr.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: true)
	Compress bool `mapstructure:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	settings := catalog.DefaultSettings()
	rotation := logging.DefaultRotationConfig()
	return &Config{
		Container: ContainerConfig{
			Name: "test",
			Data: "ubuntu,xenial,amd64",
		},
		Runtime: RuntimeConfig{
			Driver:                 "lxc",
			LXCPath:                "/var/lib/lxc",
			PollIntervalMs:         int(lifecycle.DefaultPollInterval / time.Millisecond),
			NetworkTimeoutSeconds:  int(lifecycle.DefaultNetworkTimeout / time.Second),
			ShutdownTimeoutSeconds: int(lifecycle.DefaultShutdownTimeout / time.Second),
			LockDir:                filepath.Join(os.TempDir(), "cibox-locks"),
		},
		Backend: BackendConfig{
			Branch:       settings.Branch,
			CheckoutDir:  settings.CheckoutDir,
			Requirements: settings.Requirements,
		},
		Database: DatabaseConfig{
			Name:        settings.DBName,
			User:        settings.DBUser,
			Locale:      settings.DBLocale,
			ServiceUnit: settings.DBServiceUnit,
		},
		Secrets: SecretsConfig{
			File:       "config_local.json",
			StagingDir: settings.SecretsDir,
		},
		Export: ExportConfig{
			Archive: filepath.Join(os.TempDir(), "container_rootfs.tar.gz"),
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        StateDir(),
			MaxSizeMB:  rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			Compress:   rotation.Compress,
		},
	}
}

// PollInterval returns the boot poll interval as a Duration
func (c *RuntimeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// NetworkTimeout returns the network wait budget as a Duration
func (c *RuntimeConfig) NetworkTimeout() time.Duration {
	return time.Duration(c.NetworkTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a Duration
func (c *RuntimeConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Lifecycle returns the controller timings
func (c *Config) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		PollInterval:    c.Runtime.PollInterval(),
		NetworkTimeout:  c.Runtime.NetworkTimeout(),
		ShutdownTimeout: c.Runtime.ShutdownTimeout(),
	}
}

// Spec parses the container name and data triple
func (c *Config) Spec() (container.Spec, error) {
	return container.ParseSpec(c.Container.Name, c.Container.Data)
}

// CatalogSettings returns the pipeline parameters
func (c *Config) CatalogSettings() catalog.Settings {
	return catalog.Settings{
		GitURL:        c.Backend.GitURL,
		Branch:        c.Backend.Branch,
		CheckoutDir:   c.Backend.CheckoutDir,
		Requirements:  c.Backend.Requirements,
		DBName:        c.Database.Name,
		DBUser:        c.Database.User,
		DBPassword:    c.Database.Password,
		DBLocale:      c.Database.Locale,
		DBServiceUnit: c.Database.ServiceUnit,
		SecretsDir:    c.Secrets.StagingDir,
	}
}

// LoggingOptions returns the logger options. Callers check Enabled first.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Dir:   c.Logging.Dir,
		Level: c.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxBackups: c.Logging.MaxBackups,
			Compress:   c.Logging.Compress,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Container defaults
	viper.SetDefault("container.name", defaults.Container.Name)
	viper.SetDefault("container.data", defaults.Container.Data)

	// Runtime defaults
	viper.SetDefault("runtime.driver", defaults.Runtime.Driver)
	viper.SetDefault("runtime.lxc_path", defaults.Runtime.LXCPath)
	viper.SetDefault("runtime.poll_interval_ms", defaults.Runtime.PollIntervalMs)
	viper.SetDefault("runtime.network_timeout_seconds", defaults.Runtime.NetworkTimeoutSeconds)
	viper.SetDefault("runtime.shutdown_timeout_seconds", defaults.Runtime.ShutdownTimeoutSeconds)
	viper.SetDefault("runtime.lock_dir", defaults.Runtime.LockDir)

	// Backend defaults
	viper.SetDefault("backend.git_url", defaults.Backend.GitURL)
	viper.SetDefault("backend.branch", defaults.Backend.Branch)
	viper.SetDefault("backend.checkout_dir", defaults.Backend.CheckoutDir)
	viper.SetDefault("backend.requirements", defaults.Backend.Requirements)

	// Database defaults
	viper.SetDefault("database.name", defaults.Database.Name)
	viper.SetDefault("database.user", defaults.Database.User)
	viper.SetDefault("database.password", defaults.Database.Password)
	viper.SetDefault("database.locale", defaults.Database.Locale)
	viper.SetDefault("database.service_unit", defaults.Database.ServiceUnit)

	// Secrets, export, pipelines and metrics defaults
	viper.SetDefault("secrets.file", defaults.Secrets.File)
	viper.SetDefault("secrets.staging_dir", defaults.Secrets.StagingDir)
	viper.SetDefault("export.archive", defaults.Export.Archive)
	viper.SetDefault("pipelines.extensions_file", defaults.Pipelines.ExtensionsFile)
	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// BindEnv wires environment variables: CIBOX_<SECTION>_<KEY> for every key,
// plus the bare GIT_URL for backend.git_url.
func BindEnv() {
	viper.SetEnvPrefix("CIBOX")
	// Replace dots with underscores for nested keys in env vars
	// e.g., CIBOX_RUNTIME_DRIVER for runtime.driver
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("backend.git_url", "CIBOX_BACKEND_GIT_URL", "GIT_URL")
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cibox")
	}
	// Fall back to ~/.config/cibox
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cibox"
	}
	return filepath.Join(home, ".config", "cibox")
}

// StateDir returns the directory holding cibox.log
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "cibox")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cibox", "logs")
	}
	return filepath.Join(home, ".local", "state", "cibox")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidDrivers returns the supported container runtimes
func ValidDrivers() []string {
	return []string{"lxc", "docker"}
}
