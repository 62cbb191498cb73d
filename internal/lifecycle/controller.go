package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
	"github.com/Iron-Ham/cibox/internal/logging"
)

// Default timings.
const (
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultNetworkTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Config holds the controller's timing parameters.
type Config struct {
	// PollInterval is the pause between state and address reads.
	PollInterval time.Duration
	// NetworkTimeout bounds the wait for a network address after boot.
	NetworkTimeout time.Duration
	// ShutdownTimeout bounds the graceful shutdown wait.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:    DefaultPollInterval,
		NetworkTimeout:  DefaultNetworkTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.NetworkTimeout <= 0 {
		c.NetworkTimeout = d.NetworkTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// Status is a point-in-time view of a container.
type Status struct {
	Name      string
	Exists    bool
	State     container.State
	Addresses []string
}

// Controller drives a container through create, boot, stop and destroy.
// It never retries and never creates a container implicitly.
type Controller struct {
	logger   *logging.Logger
	cfg      Config
	progress Progress
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithProgress sets the boot progress indicator.
func WithProgress(p Progress) Option {
	return func(c *Controller) { c.progress = p }
}

// WithClock replaces the wall clock and sleep, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.now = now
		c.sleep = sleep
	}
}

// NewController creates a Controller.
func NewController(logger *logging.Logger, cfg Config, opts ...Option) *Controller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	c := &Controller{
		logger:   logger,
		cfg:      cfg.withDefaults(),
		progress: NopProgress{},
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Create defines the container from spec. It reports false without touching
// the runtime further when the container already exists.
func (c *Controller) Create(ctx context.Context, h container.Handle, spec container.Spec) (bool, error) {
	log := c.logger.WithContainer(h.Name())

	exists, err := h.Exists(ctx)
	if err != nil {
		return false, errors.NewContainerError(h.Name(), "create", err)
	}
	if exists {
		log.Info("container already exists")
		return false, nil
	}

	log.Info("creating container", "spec", spec.String())
	start := c.now()
	if err := h.Create(ctx, spec); err != nil {
		log.Error("create failed", "error", err.Error())
		return false, errors.NewContainerError(h.Name(), "create", err)
	}
	log.Info("container created", "duration_ms", c.now().Sub(start).Milliseconds())
	return true, nil
}

// EnsureRunning boots the container if needed and waits until it is running
// and has a network address. It returns the addresses.
//
// The state poll has no iteration bound and ends only on Running or ctx
// cancellation. The address wait is bounded by Config.NetworkTimeout and on
// expiry leaves the container running without retrying start.
func (c *Controller) EnsureRunning(ctx context.Context, h container.Handle) ([]string, error) {
	name := h.Name()
	log := c.logger.WithContainer(name)

	exists, err := h.Exists(ctx)
	if err != nil {
		return nil, errors.NewContainerError(name, "start", err)
	}
	if !exists {
		return nil, errors.NewContainerError(name, "start", errors.ErrNotFound)
	}

	state, err := h.State(ctx)
	if err != nil {
		return nil, errors.NewContainerError(name, "start", err)
	}
	if state != container.StateRunning && state != container.StateStarting {
		log.Info("starting container", "state", state.String())
		if err := h.Start(ctx); err != nil {
			log.Error("start failed", "error", err.Error())
			return nil, errors.NewContainerError(name, "start", fmt.Errorf("%w: %w", errors.ErrStartFailure, err))
		}
	}

	if err := c.waitRunning(ctx, h); err != nil {
		return nil, errors.NewContainerError(name, "start", err)
	}

	addrs, err := c.waitNetwork(ctx, h)
	if err != nil {
		log.Error("network unavailable", "timeout", c.cfg.NetworkTimeout.String())
		return nil, errors.NewContainerError(name, "start", err)
	}
	log.Info("container running", "addresses", addrs)
	return addrs, nil
}

func (c *Controller) waitRunning(ctx context.Context, h container.Handle) error {
	defer c.progress.Done()
	for {
		state, err := h.State(ctx)
		if err != nil {
			return err
		}
		if state == container.StateRunning {
			return nil
		}
		c.progress.Tick(h.Name(), state)
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (c *Controller) waitNetwork(ctx context.Context, h container.Handle) ([]string, error) {
	deadline := c.now().Add(c.cfg.NetworkTimeout)
	for {
		addrs, err := h.NetworkAddresses(ctx)
		if err == nil && len(addrs) > 0 {
			return addrs, nil
		}
		if err != nil {
			c.logger.WithContainer(h.Name()).Debug("address read failed", "error", err.Error())
		}
		if !c.now().Before(deadline) {
			return nil, errors.ErrNetworkUnavailable
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// Stop halts a running container. A container that is not running is left
// alone and reported as success.
//
// A failed stop request is logged and followed by a graceful shutdown
// attempt regardless. Only a shutdown that does not complete within
// Config.ShutdownTimeout fails the operation; both failures are returned
// when both happen.
func (c *Controller) Stop(ctx context.Context, h container.Handle) error {
	name := h.Name()
	log := c.logger.WithContainer(name)

	state, err := h.State(ctx)
	if err != nil {
		log.Error("reading state before stop failed", "error", err.Error())
		return errors.NewContainerError(name, "stop", fmt.Errorf("%w: %w", errors.ErrStateUnknown, err))
	}
	if state != container.StateRunning {
		log.Debug("container not running, nothing to stop", "state", state.String())
		return nil
	}

	log.Info("stopping container")
	stopErr := h.Stop(ctx)
	if stopErr != nil {
		log.Warn("stop request failed, attempting graceful shutdown", "error", stopErr.Error())
		stopErr = errors.NewContainerError(name, "stop", stopErr).WithSeverity(errors.SeverityWarning)
	}

	if err := h.Shutdown(ctx, c.cfg.ShutdownTimeout); err != nil {
		log.Error("graceful shutdown did not complete", "timeout", c.cfg.ShutdownTimeout.String(), "error", err.Error())
		shutdownErr := errors.NewContainerError(name, "shutdown", fmt.Errorf("%w: %w", errors.ErrStopFailure, err))
		if stopErr != nil {
			return errors.Join(stopErr, shutdownErr)
		}
		return shutdownErr
	}

	log.Info("container stopped")
	return nil
}

// Destroy stops the container on a best-effort basis and removes it. A stop
// failure does not prevent removal, but a container whose state cannot be
// read is not removed.
func (c *Controller) Destroy(ctx context.Context, h container.Handle) error {
	name := h.Name()
	log := c.logger.WithContainer(name)

	exists, err := h.Exists(ctx)
	if err != nil {
		return errors.NewContainerError(name, "destroy", err)
	}
	if !exists {
		return errors.NewContainerError(name, "destroy", errors.ErrNotFound)
	}

	if err := c.Stop(ctx, h); err != nil {
		if errors.Is(err, errors.ErrStateUnknown) {
			return err
		}
		log.Warn("stop before destroy failed, destroying anyway", "error", err.Error())
	}

	if err := h.Destroy(ctx); err != nil {
		log.Error("destroy failed", "error", err.Error())
		return errors.NewContainerError(name, "destroy", fmt.Errorf("%w: %w", errors.ErrDestroyFailure, err))
	}
	log.Info("container destroyed")
	return nil
}

// Status reads the container's existence, state and addresses without
// changing anything.
func (c *Controller) Status(ctx context.Context, h container.Handle) (Status, error) {
	st := Status{Name: h.Name()}

	exists, err := h.Exists(ctx)
	if err != nil {
		return st, errors.NewContainerError(h.Name(), "status", err)
	}
	st.Exists = exists
	if !exists {
		st.State = container.StateUndefined
		return st, nil
	}

	if st.State, err = h.State(ctx); err != nil {
		return st, errors.NewContainerError(h.Name(), "status", err)
	}
	if st.State == container.StateRunning {
		if st.Addresses, err = h.NetworkAddresses(ctx); err != nil {
			return st, errors.NewContainerError(h.Name(), "status", err)
		}
	}
	return st, nil
}
