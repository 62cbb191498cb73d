// Package lxc drives LXC containers through the lxc-* command line tools.
//
// Every invocation goes through a command.Runner so the backend can be tested
// without LXC installed.
package lxc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/cibox/internal/command"
	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
)

// DefaultPath is the system-wide LXC container directory.
const DefaultPath = "/var/lib/lxc"

// attachPath is the PATH handed to commands run with lxc-attach --clear-env.
const attachPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// lxc-stop exits 2 when the container was not running.
const exitNotRunning = 2

// Driver opens LXC container handles.
type Driver struct {
	path   string
	runner command.Runner
}

// NewDriver creates a Driver for containers under path. An empty path means
// DefaultPath.
func NewDriver(path string, runner command.Runner) *Driver {
	if path == "" {
		path = DefaultPath
	}
	return &Driver{path: path, runner: runner}
}

// Name implements container.Driver.
func (d *Driver) Name() string { return "lxc" }

// Open implements container.Driver.
func (d *Driver) Open(name string, stdout, stderr io.Writer) (container.Handle, error) {
	if !container.ValidName(name) {
		return nil, fmt.Errorf("%w: %q is not a valid container name", errors.ErrInvalidSpec, name)
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Container{
		name:   name,
		path:   d.path,
		runner: d.runner,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// Container is a handle on one LXC container.
type Container struct {
	name   string
	path   string
	runner command.Runner
	stdout io.Writer
	stderr io.Writer
}

// Name implements container.Handle.
func (c *Container) Name() string { return c.name }

// args prefixes the per-container flags shared by every lxc-* tool.
func (c *Container) args(extra ...string) []string {
	return append([]string{"-n", c.name, "-P", c.path}, extra...)
}

// invoke runs tool and folds its stderr into the returned error.
func (c *Container) invoke(ctx context.Context, stdout io.Writer, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := c.runner.Run(cmd); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", tool, err, msg)
		}
		return fmt.Errorf("%s: %w", tool, err)
	}
	return nil
}

// output runs tool and returns its trimmed stdout.
func (c *Container) output(ctx context.Context, tool string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	out, err := c.runner.Output(cmd)
	if err != nil {
		return "", fmt.Errorf("%s: %w", tool, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Exists implements container.Handle.
func (c *Container) Exists(ctx context.Context) (bool, error) {
	out, err := c.output(ctx, "lxc-ls", "-P", c.path, "-1")
	if err != nil {
		return false, err
	}
	for _, name := range strings.Fields(out) {
		if name == c.name {
			return true, nil
		}
	}
	return false, nil
}

// Create implements container.Handle using the download template.
func (c *Container) Create(ctx context.Context, spec container.Spec) error {
	args := c.args("-t", "download", "-q", "--",
		"--dist", spec.Distribution,
		"--release", spec.Release,
		"--arch", spec.Architecture,
	)
	return c.invoke(ctx, c.stdout, "lxc-create", args...)
}

// Start implements container.Handle. It daemonizes and returns immediately.
func (c *Container) Start(ctx context.Context) error {
	return c.invoke(ctx, io.Discard, "lxc-start", c.args("-d")...)
}

// State implements container.Handle. A container lxc-info cannot describe
// is reported as undefined.
func (c *Container) State(ctx context.Context) (container.State, error) {
	cmd := exec.CommandContext(ctx, "lxc-info", c.args("-s", "-H")...)
	out, err := c.runner.Output(cmd)
	if err != nil {
		code, runErr := command.ExitCode(err)
		if runErr != nil {
			return container.StateUndefined, fmt.Errorf("lxc-info: %w", runErr)
		}
		if code != 0 {
			return container.StateUndefined, nil
		}
	}
	return parseState(strings.TrimSpace(string(out))), nil
}

// parseState maps lxc state names onto container.State. Frozen containers
// still hold their processes and count as running.
func parseState(s string) container.State {
	switch strings.ToUpper(s) {
	case "STOPPED":
		return container.StateStopped
	case "STARTING":
		return container.StateStarting
	case "RUNNING", "FREEZING", "FROZEN", "THAWED":
		return container.StateRunning
	case "STOPPING", "ABORTING":
		return container.StateStopping
	default:
		return container.StateUndefined
	}
}

// NetworkAddresses implements container.Handle.
func (c *Container) NetworkAddresses(ctx context.Context) ([]string, error) {
	out, err := c.output(ctx, "lxc-info", c.args("-i", "-H")...)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// Running implements container.Handle.
func (c *Container) Running(ctx context.Context) bool {
	state, err := c.State(ctx)
	return err == nil && state == container.StateRunning
}

// Stop implements container.Handle. It asks init to halt and does not wait.
func (c *Container) Stop(ctx context.Context) error {
	return c.stop(ctx, "--nowait")
}

// Shutdown implements container.Handle. It requests a clean shutdown and
// waits up to timeout without killing the container's tasks.
func (c *Container) Shutdown(ctx context.Context, timeout time.Duration) error {
	secs := max(int(timeout/time.Second), 1)
	return c.stop(ctx, "--nokill", "-t", strconv.Itoa(secs))
}

func (c *Container) stop(ctx context.Context, flags ...string) error {
	err := c.invoke(ctx, io.Discard, "lxc-stop", c.args(flags...)...)
	if code, _ := command.ExitCode(err); code == exitNotRunning {
		return nil
	}
	return err
}

// Destroy implements container.Handle.
func (c *Container) Destroy(ctx context.Context) error {
	return c.invoke(ctx, io.Discard, "lxc-destroy", c.args()...)
}

// Run implements container.Handle. Output streams to the handle's writers.
func (c *Container) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("lxc-attach: empty command")
	}
	args := c.args("--clear-env",
		"--set-var", "PATH="+attachPath,
		"--set-var", "DEBIAN_FRONTEND=noninteractive",
		"--",
	)
	cmd := exec.CommandContext(ctx, "lxc-attach", append(args, argv...)...)
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr
	code, err := command.ExitCode(c.runner.Run(cmd))
	if err != nil {
		return -1, fmt.Errorf("lxc-attach: %w", err)
	}
	return code, nil
}

// RootFS implements container.Handle for directory-backed containers.
func (c *Container) RootFS(ctx context.Context) (string, error) {
	return filepath.Join(c.path, c.name, "rootfs"), nil
}
