package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cibox/internal/catalog"
	"github.com/Iron-Ham/cibox/internal/command"
	"github.com/Iron-Ham/cibox/internal/config"
	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/container/docker"
	"github.com/Iron-Ham/cibox/internal/container/lxc"
	"github.com/Iron-Ham/cibox/internal/lifecycle"
	"github.com/Iron-Ham/cibox/internal/lock"
	"github.com/Iron-Ham/cibox/internal/logging"
	"github.com/Iron-Ham/cibox/internal/sandbox"
)

// newDriver builds the configured container runtime. Tests replace it.
var newDriver = func(cfg *config.Config) (container.Driver, error) {
	switch cfg.Runtime.Driver {
	case "docker":
		d, err := docker.NewDriver()
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return lxc.NewDriver(cfg.Runtime.LXCPath, command.New()), nil
	}
}

// env is everything one command invocation needs to drive the container.
type env struct {
	cfg     *config.Config
	logger  *logging.Logger
	lock    *lock.Lock
	sandbox *sandbox.Sandbox
}

// openEnv loads the configuration and assembles the sandbox. With exclusive
// set, the per-container lock is held until Close.
func openEnv(cmd *cobra.Command, exclusive bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	root, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: root}
	logger := root.WithRun(uuid.NewString()).WithContainer(cfg.Container.Name)

	if exclusive {
		if e.lock, err = lock.Acquire(cfg.Runtime.LockDir, cfg.Container.Name); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.sandbox, err = newSandbox(cmd, cfg, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	logger.Debug("command started", "command", cmd.Name(), "runtime", cfg.Runtime.Driver)
	return e, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

func newSandbox(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger) (*sandbox.Sandbox, error) {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	spec, err := cfg.Spec()
	if err != nil {
		return nil, err
	}
	drv, err := newDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s runtime: %w", cfg.Runtime.Driver, err)
	}
	h, err := drv.Open(cfg.Container.Name, out, errOut)
	if err != nil {
		return nil, err
	}

	cat, err := newCatalog(cfg, logger, cmd)
	if err != nil {
		return nil, err
	}
	ctrl := lifecycle.NewController(logger, cfg.Lifecycle(), lifecycle.WithProgress(lifecycle.NewSpinner(out)))

	return sandbox.New(sandbox.Config{
		Spec:            spec,
		SecretsFile:     cfg.Secrets.File,
		StagingDir:      cfg.Secrets.StagingDir,
		MetricsTextfile: cfg.Metrics.Textfile,
	}, h, ctrl, cat, sandbox.WithLogger(logger), sandbox.WithOutput(out, errOut)), nil
}

func newCatalog(cfg *config.Config, logger *logging.Logger, cmd *cobra.Command) (*catalog.Catalog, error) {
	opts := []catalog.Option{
		catalog.WithLogger(logger),
		catalog.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}
	if path := cfg.Pipelines.ExtensionsFile; path != "" {
		ext, err := catalog.LoadExtensions(afero.NewOsFs(), path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, catalog.WithExtensions(ext))
	}
	return catalog.New(cfg.CatalogSettings(), opts...), nil
}

// Close releases the container lock and flushes the log.
func (e *env) Close() {
	if e.lock != nil {
		if err := e.lock.Release(); err != nil {
			e.logger.Warn("failed to release lock", "error", err.Error())
		}
	}
	_ = e.logger.Close()
}
