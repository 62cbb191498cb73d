package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/cibox/internal/catalog"
	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
	"github.com/Iron-Ham/cibox/internal/lifecycle"
	"github.com/Iron-Ham/cibox/internal/logging"
	"github.com/Iron-Ham/cibox/internal/pipeline"
	"github.com/Iron-Ham/cibox/internal/styles"
)

// Config holds what a Sandbox needs beyond its collaborators.
type Config struct {
	// Spec is the container name and distribution triple used by Create.
	Spec container.Spec
	// SecretsFile is staged into StagingDir by Create.
	SecretsFile string
	StagingDir  string
	// MetricsTextfile receives step metrics after each pipeline run. Empty
	// disables metrics.
	MetricsTextfile string
}

// Sandbox runs cibox commands against one container.
type Sandbox struct {
	cfg     Config
	handle  container.Handle
	ctrl    *lifecycle.Controller
	catalog *catalog.Catalog
	exec    *pipeline.Executor
	metrics *pipeline.Metrics

	fs     afero.Fs
	logger *logging.Logger
	out    io.Writer
	errOut io.Writer
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithFs sets the host filesystem used for secrets staging and export.
func WithFs(fs afero.Fs) Option {
	return func(s *Sandbox) { s.fs = fs }
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Sandbox) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOutput sets where status lines and failure lines are printed.
func WithOutput(out, errOut io.Writer) Option {
	return func(s *Sandbox) {
		s.out = out
		s.errOut = errOut
	}
}

// New creates a Sandbox for h.
func New(cfg Config, h container.Handle, ctrl *lifecycle.Controller, cat *catalog.Catalog, opts ...Option) *Sandbox {
	s := &Sandbox{
		cfg:     cfg,
		handle:  h,
		ctrl:    ctrl,
		catalog: cat,
		fs:      afero.NewOsFs(),
		logger:  logging.NopLogger(),
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}

	execOpts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithSink(pipeline.NewTextSink(s.out, s.errOut)),
	}
	if cfg.MetricsTextfile != "" {
		s.metrics = pipeline.NewMetrics()
		execOpts = append(execOpts, pipeline.WithMetrics(s.metrics))
	}
	s.exec = pipeline.NewExecutor(execOpts...)
	return s
}

// Name returns the container name.
func (s *Sandbox) Name() string {
	return s.handle.Name()
}

func (s *Sandbox) status(format string, args ...any) {
	fmt.Fprintln(s.out, styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Create stages the secrets file and defines the container. An existing
// container is left untouched.
func (s *Sandbox) Create(ctx context.Context) error {
	if err := s.cfg.Spec.Validate(); err != nil {
		return err
	}
	if err := s.stageSecrets(); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "Creating container %s (%s) ...\n", s.Name(), s.cfg.Spec)
	created, err := s.ctrl.Create(ctx, s.handle, s.cfg.Spec)
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintf(s.out, "Container %s already exist\n", s.Name())
		return nil
	}
	s.status("Created container %s", s.Name())
	return nil
}

// stageSecrets copies the secrets file into the staging directory.
func (s *Sandbox) stageSecrets() error {
	if s.cfg.SecretsFile == "" {
		return nil
	}
	data, err := afero.ReadFile(s.fs, s.cfg.SecretsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewMissingConfigError("secrets.file",
				fmt.Sprintf("%s not found; create it or point secrets.file at it", s.cfg.SecretsFile))
		}
		return fmt.Errorf("reading secrets: %w", err)
	}
	if err := s.fs.MkdirAll(s.cfg.StagingDir, 0o700); err != nil {
		return fmt.Errorf("creating secrets staging dir: %w", err)
	}
	dst := filepath.Join(s.cfg.StagingDir, filepath.Base(s.cfg.SecretsFile))
	if err := afero.WriteFile(s.fs, dst, data, 0o600); err != nil {
		return fmt.Errorf("staging secrets: %w", err)
	}
	s.logger.Debug("secrets staged", "path", dst)
	return nil
}

// Start boots the container and waits until it has a network address.
func (s *Sandbox) Start(ctx context.Context) error {
	addrs, err := s.ctrl.EnsureRunning(ctx, s.handle)
	if err != nil {
		return err
	}
	s.status("Container '%s' started (%s)", s.Name(), strings.Join(addrs, ", "))
	return nil
}

// Stop halts the container.
func (s *Sandbox) Stop(ctx context.Context) error {
	if err := s.ctrl.Stop(ctx, s.handle); err != nil {
		return err
	}
	s.status("Container '%s' stopped", s.Name())
	return nil
}

// Destroy stops the container if needed and removes it.
func (s *Sandbox) Destroy(ctx context.Context) error {
	if err := s.ctrl.Destroy(ctx, s.handle); err != nil {
		return err
	}
	s.status("Destroyed container %s", s.Name())
	return nil
}

// Status prints the container state and addresses.
func (s *Sandbox) Status(ctx context.Context) (lifecycle.Status, error) {
	st, err := s.ctrl.Status(ctx, s.handle)
	if err != nil {
		return st, err
	}
	if !st.Exists {
		fmt.Fprintf(s.out, "Container %s is not defined\n", st.Name)
		return st, nil
	}
	fmt.Fprintf(s.out, "Container %s: %s\n", st.Name, st.State)
	for _, addr := range st.Addresses {
		fmt.Fprintf(s.out, "  %s\n", addr)
	}
	return st, nil
}

// Run executes the named pipeline and its dependencies. Required
// configuration is checked before the container is touched; the container
// is then booted if needed.
func (s *Sandbox) Run(ctx context.Context, name string) ([]pipeline.Result, error) {
	if err := s.catalog.Validate(name); err != nil {
		return nil, err
	}
	if _, err := s.ctrl.EnsureRunning(ctx, s.handle); err != nil {
		return nil, err
	}

	results, err := s.catalog.Run(ctx, s.handle, s.exec, name)
	if roleCreated(results) {
		st := s.catalog.Settings()
		fmt.Fprintf(s.out, "Database role %s password: %s\n", st.DBUser, st.DBPassword)
	}
	if s.metrics != nil {
		if werr := s.metrics.WriteTextfile(s.cfg.MetricsTextfile); werr != nil {
			s.logger.Warn("writing metrics textfile failed", "path", s.cfg.MetricsTextfile, "error", werr.Error())
		}
	}
	return results, err
}

// roleCreated reports whether setup_backend applied the database password.
func roleCreated(results []pipeline.Result) bool {
	for _, r := range results {
		if r.Pipeline != catalog.SetupBackend {
			continue
		}
		for _, step := range r.Steps {
			if step.Label == catalog.CreateRoleStep {
				return step.Outcome == pipeline.OutcomeSuccess
			}
		}
	}
	return false
}
