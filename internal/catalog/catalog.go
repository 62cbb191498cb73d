package catalog

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/cibox/internal/command"
	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
	"github.com/Iron-Ham/cibox/internal/logging"
	"github.com/Iron-Ham/cibox/internal/pipeline"
)

// Pipeline names.
const (
	Provision    = "provision"
	CloneBackend = "clone_backend"
	SetupBackend = "setup_backend"
	RunTests     = "run_tests"
)

// Check answers a precondition question against a running container.
type Check func(ctx context.Context, h container.Handle) (bool, error)

// Dependency declares that Pipeline must run before the dependent one,
// unless the Unless check already passes. A nil Unless always runs the
// dependency.
type Dependency struct {
	Pipeline    string
	Unless      Check
	Description string
}

// Entry is one named pipeline.
type Entry struct {
	Name        string
	Description string
	Requires    []Dependency
	// Validate checks required configuration. It must not touch the container.
	Validate func() error
	// Build assembles the steps. It is called once per run.
	Build func() pipeline.Pipeline
}

// Catalog holds the named pipelines and resolves their dependencies.
type Catalog struct {
	settings   Settings
	entries    map[string]*Entry
	extensions Extensions

	fs     afero.Fs
	runner command.Runner
	logger *logging.Logger
	stdout io.Writer
	stderr io.Writer
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFs sets the filesystem local actions use to reach the container rootfs
// and the secrets staging directory.
func WithFs(fs afero.Fs) Option {
	return func(c *Catalog) { c.fs = fs }
}

// WithRunner sets the runner for local commands.
func WithRunner(r command.Runner) Option {
	return func(c *Catalog) { c.runner = r }
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOutput sets where local command output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Catalog) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// WithExtensions appends extra steps to named pipelines.
func WithExtensions(ext Extensions) Option {
	return func(c *Catalog) { c.extensions = ext }
}

// New creates the catalog of the four standard pipelines.
func New(settings Settings, opts ...Option) *Catalog {
	c := &Catalog{
		settings: settings.withDefaults(),
		fs:       afero.NewOsFs(),
		runner:   command.New(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = map[string]*Entry{}
	for _, e := range c.standard() {
		c.Register(e)
	}
	return c
}

// Register adds or replaces a pipeline.
func (c *Catalog) Register(e *Entry) {
	c.entries[e.Name] = e
}

// Names returns the registered pipeline names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named entry.
func (c *Catalog) Get(name string) (*Entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownPipeline, name)
	}
	return e, nil
}

// Pipeline builds the named pipeline with any extension steps appended.
func (c *Catalog) Pipeline(name string) (pipeline.Pipeline, error) {
	e, err := c.Get(name)
	if err != nil {
		return pipeline.Pipeline{}, err
	}
	p := e.Build()
	if extra := c.extensions.Steps(name); len(extra) > 0 {
		p = p.Append(extra...)
	}
	return p, nil
}

// Validate checks the configuration of name and of every pipeline it may
// pull in, without touching any container. It also rejects dependency
// cycles and extensions for unknown pipelines.
func (c *Catalog) Validate(name string) error {
	for _, ext := range c.extensions.Names() {
		if _, err := c.Get(ext); err != nil {
			return fmt.Errorf("extensions: %w", err)
		}
	}

	closure, err := c.closure(name, nil, map[string]bool{})
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range closure {
		if v := c.entries[n].Validate; v != nil {
			if err := v(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// closure lists name and every static dependency, dependencies first.
func (c *Catalog) closure(name string, stack []string, seen map[string]bool) ([]string, error) {
	if slices.Contains(stack, name) {
		return nil, fmt.Errorf("%w: %v", errors.ErrDependencyCycle, append(stack, name))
	}
	e, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if seen[name] {
		return nil, nil
	}
	stack = append(stack, name)

	var out []string
	for _, dep := range e.Requires {
		sub, err := c.closure(dep.Pipeline, stack, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	seen[name] = true
	return append(out, name), nil
}

// Stage is one pipeline in a resolved run order. Rechecks are the Unless
// checks of the dependencies that scheduled it; they must pass after the
// stage has run.
type Stage struct {
	Name     string
	Rechecks []Dependency
}

// Resolve walks name's dependencies depth first and returns the run order,
// dependencies first and each pipeline once. Each Unless check is evaluated
// once; a passing check prunes that dependency and everything below it.
func (c *Catalog) Resolve(ctx context.Context, h container.Handle, name string) ([]Stage, error) {
	var order []Stage
	index := map[string]int{}
	if err := c.resolve(ctx, h, name, nil, index, &order); err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Catalog) resolve(ctx context.Context, h container.Handle, name string, stack []string, index map[string]int, order *[]Stage) error {
	if slices.Contains(stack, name) {
		return fmt.Errorf("%w: %v", errors.ErrDependencyCycle, append(stack, name))
	}
	if _, done := index[name]; done {
		return nil
	}
	e, err := c.Get(name)
	if err != nil {
		return err
	}
	stack = append(stack, name)

	for _, dep := range e.Requires {
		if dep.Unless != nil {
			ok, err := dep.Unless(ctx, h)
			if err != nil {
				return fmt.Errorf("%s: checking %s: %w", name, dep.Description, err)
			}
			if ok {
				c.logger.WithPipeline(name).Debug("dependency satisfied", "dependency", dep.Pipeline, "check", dep.Description)
				continue
			}
		}
		if err := c.resolve(ctx, h, dep.Pipeline, stack, index, order); err != nil {
			return err
		}
		if dep.Unless != nil {
			i := index[dep.Pipeline]
			(*order)[i].Rechecks = append((*order)[i].Rechecks, dep)
		}
	}

	index[name] = len(*order)
	*order = append(*order, Stage{Name: name})
	return nil
}

// Run validates, resolves and executes name with its dependencies, returning
// one Result per executed pipeline. The container must already be running.
//
// Step failures do not stop later pipelines. A dependency whose check still
// fails after it ran stops the run with ErrPreconditionUnmet, and so does an
// aborted or interrupted pipeline.
func (c *Catalog) Run(ctx context.Context, h container.Handle, exec *pipeline.Executor, name string) ([]pipeline.Result, error) {
	if err := c.Validate(name); err != nil {
		return nil, err
	}
	stages, err := c.Resolve(ctx, h, name)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	log := c.logger.WithContainer(h.Name())
	log.Info("pipelines resolved", "target", name, "order", names)

	var (
		results []pipeline.Result
		errs    []error
	)
	for _, stage := range stages {
		p, err := c.Pipeline(stage.Name)
		if err != nil {
			return results, err
		}
		res := exec.Run(ctx, h, p)
		results = append(results, res)
		if err := res.Err(); err != nil {
			errs = append(errs, err)
		}
		if res.Interrupted != nil {
			return results, errors.Join(errs...)
		}
		if p.AbortOnFailure && !res.OK() && stage.Name != name {
			errs = append(errs, fmt.Errorf("%w: %s aborted", errors.ErrPreconditionUnmet, stage.Name))
			return results, errors.Join(errs...)
		}

		for _, dep := range stage.Rechecks {
			ok, err := dep.Unless(ctx, h)
			if err == nil && !ok {
				err = fmt.Errorf("%s still not satisfied after %s", dep.Description, stage.Name)
			}
			if err != nil {
				log.Error("precondition unmet", "dependency", stage.Name, "check", dep.Description, "error", err.Error())
				errs = append(errs, fmt.Errorf("%w: %w", errors.ErrPreconditionUnmet, err))
				return results, errors.Join(errs...)
			}
		}
	}
	return results, errors.Join(errs...)
}
