// Package container defines the narrow capability set cibox needs from a
// container runtime and the data types that travel across it.
//
// The lifecycle controller and the pipeline executor only ever talk to a
// [Handle]. Concrete runtimes live in subpackages (lxc, docker) and an
// in-memory implementation for tests lives in fakecontainer.
package container

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Iron-Ham/cibox/internal/errors"
)

// State is the runtime-owned state of a container as observed by cibox.
type State int

const (
	// StateUndefined means no rootfs exists for the name.
	StateUndefined State = iota

	// StateStopped means the container is defined but not running.
	StateStopped

	// StateStarting means start was issued and init has not finished booting.
	StateStarting

	// StateRunning means the container is up.
	StateRunning

	// StateStopping means a stop or shutdown is in progress.
	StateStopping

	// StateDestroyed means the rootfs was removed by cibox.
	StateDestroyed
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateUndefined:
		return "undefined"
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Spec identifies a container and the image triple it is created from.
// Once Create succeeds the triple is fixed for the container's lifetime.
type Spec struct {
	Name         string
	Distribution string
	Release      string
	Architecture string
}

// nameRegex matches identifiers accepted by both lxc and docker.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ParseSpec builds a Spec from a container name and "dist,release,arch" data.
func ParseSpec(name, data string) (Spec, error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return Spec{}, fmt.Errorf("%w: container data %q must be dist,release,arch", errors.ErrInvalidSpec, data)
	}
	spec := Spec{
		Name:         name,
		Distribution: strings.TrimSpace(parts[0]),
		Release:      strings.TrimSpace(parts[1]),
		Architecture: strings.TrimSpace(parts[2]),
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Validate checks that the name is a valid runtime identifier and the
// triple is complete.
func (s Spec) Validate() error {
	if !ValidName(s.Name) {
		return fmt.Errorf("%w: %q is not a valid container name", errors.ErrInvalidSpec, s.Name)
	}
	if s.Distribution == "" || s.Release == "" || s.Architecture == "" {
		return fmt.Errorf("%w: distribution, release and architecture are required", errors.ErrInvalidSpec)
	}
	return nil
}

// String renders the triple the way it is passed on the command line.
func (s Spec) String() string {
	return s.Distribution + "," + s.Release + "," + s.Architecture
}

// ValidName reports whether name can be used as a container identifier.
func ValidName(name string) bool {
	return nameRegex.MatchString(name)
}

// Handle is the capability set of one named container.
//
// Implementations report runtime failures as errors; they do not decide
// policy. Polling, budgets and fallbacks belong to the lifecycle controller.
type Handle interface {
	// Name returns the container name this handle is bound to.
	Name() string

	// Exists reports whether a rootfs is defined for the name.
	Exists(ctx context.Context) (bool, error)

	// Create builds the rootfs from the spec's distribution, release and architecture.
	Create(ctx context.Context, spec Spec) error

	// Start boots the container without waiting for it to reach running.
	Start(ctx context.Context) error

	// State reads the current state. It must be cheap and side-effect free.
	State(ctx context.Context) (State, error)

	// NetworkAddresses returns the addresses currently assigned, possibly none.
	NetworkAddresses(ctx context.Context) ([]string, error)

	// Running reports whether the container is running.
	Running(ctx context.Context) bool

	// Stop asks the runtime to stop the container.
	Stop(ctx context.Context) error

	// Shutdown requests a clean shutdown from the container's init and waits
	// up to timeout for it to finish. It never escalates to a kill.
	Shutdown(ctx context.Context, timeout time.Duration) error

	// Destroy removes the container and its rootfs.
	Destroy(ctx context.Context) error

	// Run executes argv inside the container and returns its exit code. A
	// non-nil error means the command could not be run at all.
	Run(ctx context.Context, argv []string) (int, error)

	// RootFS returns the host path of the container's root filesystem.
	RootFS(ctx context.Context) (string, error)
}

// Driver opens handles for a particular runtime.
type Driver interface {
	// Name identifies the driver ("lxc", "docker").
	Name() string

	// Open returns a handle bound to the named container. It does not
	// require the container to exist.
	Open(name string, stdout, stderr io.Writer) (Handle, error)
}

// Exporter is implemented by handles that can stream the container
// filesystem as a tar archive without going through RootFS.
type Exporter interface {
	Export(ctx context.Context) (io.ReadCloser, error)
}
