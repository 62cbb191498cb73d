// Package docker runs the sandbox as a Docker container through the Engine API.
//
// The distribution and release select the image ("ubuntu:xenial") and the
// architecture selects the platform. The container idles on "sleep infinity"
// under docker-init so that pipeline steps can be exec'd into it the same way
// lxc-attach runs them in an LXC container.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	ctypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
)

// APIClient is the subset of the Docker client used by this backend.
type APIClient interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *ctypes.Config, hostConfig *ctypes.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (ctypes.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options ctypes.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (ctypes.InspectResponse, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerWait(ctx context.Context, containerID string, condition ctypes.WaitCondition) (<-chan ctypes.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options ctypes.RemoveOptions) error
	ContainerExport(ctx context.Context, containerID string) (io.ReadCloser, error)
	ContainerExecCreate(ctx context.Context, containerID string, options ctypes.ExecOptions) (ctypes.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config ctypes.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (ctypes.ExecInspect, error)
}

// Driver opens Docker container handles.
type Driver struct {
	api APIClient
}

// NewDriver connects to the daemon described by the DOCKER_* environment.
func NewDriver() (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Driver{api: cli}, nil
}

// NewDriverWithClient wraps an existing API client.
func NewDriverWithClient(api APIClient) *Driver {
	return &Driver{api: api}
}

// Name implements container.Driver.
func (d *Driver) Name() string { return "docker" }

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
	return &Container{name: name, api: d.api, stdout: stdout, stderr: stderr}, nil
}

// Container is a handle on one Docker container, addressed by name.
type Container struct {
	name   string
	api    APIClient
	stdout io.Writer
	stderr io.Writer
}

// Name implements container.Handle.
func (c *Container) Name() string { return c.name }

// inspect returns the container's details, or errors.ErrNotFound.
func (c *Container) inspect(ctx context.Context) (ctypes.InspectResponse, error) {
	info, err := c.api.ContainerInspect(ctx, c.name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return info, errors.ErrNotFound
		}
		return info, fmt.Errorf("failed to inspect container: %w", err)
	}
	return info, nil
}

// Exists implements container.Handle.
func (c *Container) Exists(ctx context.Context) (bool, error) {
	_, err := c.inspect(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ImageRef returns the image reference for a spec.
func ImageRef(spec container.Spec) string {
	return spec.Distribution + ":" + spec.Release
}

// Create implements container.Handle. The image is pulled for the spec's
// platform before the container is created.
func (c *Container) Create(ctx context.Context, spec container.Spec) error {
	ref := ImageRef(spec)
	platform := &ocispec.Platform{OS: "linux", Architecture: spec.Architecture}

	reader, err := c.api.ImagePull(ctx, ref, image.PullOptions{Platform: "linux/" + spec.Architecture})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	_, err = io.Copy(io.Discard, reader)
	_ = reader.Close()
	if err != nil {
		return fmt.Errorf("failed to read pull response for %s: %w", ref, err)
	}

	useInit := true
	_, err = c.api.ContainerCreate(ctx,
		&ctypes.Config{
			Image:    ref,
			Hostname: c.name,
			Cmd:      []string{"sleep", "infinity"},
			Labels: map[string]string{
				"cibox.spec": spec.String(),
			},
		},
		&ctypes.HostConfig{Init: &useInit},
		nil,
		platform,
		c.name,
	)
	if err != nil {
		if errdefs.IsConflict(err) {
			return errors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create container from %s: %w", ref, err)
	}
	return nil
}

// Start implements container.Handle.
func (c *Container) Start(ctx context.Context) error {
	if err := c.api.ContainerStart(ctx, c.name, ctypes.StartOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return errors.ErrNotFound
		}
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// State implements container.Handle.
func (c *Container) State(ctx context.Context) (container.State, error) {
	info, err := c.inspect(ctx)
	if errors.Is(err, errors.ErrNotFound) {
		return container.StateUndefined, nil
	}
	if err != nil {
		return container.StateUndefined, err
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return container.StateUndefined, nil
	}
	return parseStatus(info.State.Status), nil
}

// parseStatus maps Docker's status strings onto container.State.
func parseStatus(status string) container.State {
	switch status {
	case "created", "exited", "dead":
		return container.StateStopped
	case "restarting":
		return container.StateStarting
	case "running", "paused":
		return container.StateRunning
	case "removing":
		return container.StateStopping
	default:
		return container.StateUndefined
	}
}

// NetworkAddresses implements container.Handle.
func (c *Container) NetworkAddresses(ctx context.Context) ([]string, error) {
	info, err := c.inspect(ctx)
	if err != nil {
		return nil, err
	}
	if info.NetworkSettings == nil {
		return nil, nil
	}
	var addrs []string
	for _, ep := range info.NetworkSettings.Networks {
		if ep == nil {
			continue
		}
		if ep.IPAddress != "" {
			addrs = append(addrs, ep.IPAddress)
		}
		if ep.GlobalIPv6Address != "" {
			addrs = append(addrs, ep.GlobalIPv6Address)
		}
	}
	return addrs, nil
}

// Running implements container.Handle.
func (c *Container) Running(ctx context.Context) bool {
	state, err := c.State(ctx)
	return err == nil && state == container.StateRunning
}

// Stop implements container.Handle. It signals init and does not wait.
func (c *Container) Stop(ctx context.Context) error {
	return c.signal(ctx, "SIGTERM")
}

func (c *Container) signal(ctx context.Context, sig string) error {
	err := c.api.ContainerKill(ctx, c.name, sig)
	switch {
	case err == nil, errdefs.IsConflict(err):
		// Conflict means the container is not running.
		return nil
	case client.IsErrNotFound(err):
		return errors.ErrNotFound
	default:
		return fmt.Errorf("failed to signal container: %w", err)
	}
}

// Shutdown implements container.Handle. It signals init and waits up to
// timeout for the container to exit. It never kills.
func (c *Container) Shutdown(ctx context.Context, timeout time.Duration) error {
	if err := c.signal(ctx, "SIGTERM"); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	respCh, errCh := c.api.ContainerWait(waitCtx, c.name, ctypes.WaitConditionNotRunning)
	select {
	case resp := <-respCh:
		if resp.Error != nil && resp.Error.Message != "" {
			return fmt.Errorf("container wait: %s", resp.Error.Message)
		}
		return nil
	case err := <-errCh:
		if waitCtx.Err() != nil {
			return fmt.Errorf("shutdown did not finish within %s: %w", timeout, waitCtx.Err())
		}
		return fmt.Errorf("container wait: %w", err)
	case <-waitCtx.Done():
		return fmt.Errorf("shutdown did not finish within %s: %w", timeout, waitCtx.Err())
	}
}

// Destroy implements container.Handle.
func (c *Container) Destroy(ctx context.Context) error {
	err := c.api.ContainerRemove(ctx, c.name, ctypes.RemoveOptions{RemoveVolumes: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return errors.ErrNotFound
		}
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Run implements container.Handle by exec'ing argv and demultiplexing its
// output onto the handle's writers.
func (c *Container) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("exec: empty command")
	}
	created, err := c.api.ContainerExecCreate(ctx, c.name, ctypes.ExecOptions{
		Cmd:          argv,
		Env:          []string{"DEBIAN_FRONTEND=noninteractive"},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to create exec: %w", err)
	}

	resp, err := c.api.ContainerExecAttach(ctx, created.ID, ctypes.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer resp.Close()

	if _, err := stdcopy.StdCopy(c.stdout, c.stderr, resp.Reader); err != nil {
		return -1, fmt.Errorf("failed to read exec output: %w", err)
	}

	info, err := c.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return info.ExitCode, nil
}

// RootFS implements container.Handle. Only overlay-style storage drivers
// expose a merged directory, and only while the container is mounted.
func (c *Container) RootFS(ctx context.Context) (string, error) {
	info, err := c.inspect(ctx)
	if err != nil {
		return "", err
	}
	if info.ContainerJSONBase != nil {
		if dir := info.GraphDriver.Data["MergedDir"]; dir != "" {
			return dir, nil
		}
		return "", fmt.Errorf("storage driver %q does not expose a merged rootfs", info.GraphDriver.Name)
	}
	return "", fmt.Errorf("container has no storage details")
}

// Export streams the container filesystem as an uncompressed tar archive.
func (c *Container) Export(ctx context.Context) (io.ReadCloser, error) {
	rc, err := c.api.ContainerExport(ctx, c.name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to export container: %w", err)
	}
	return rc, nil
}
