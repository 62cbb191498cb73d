// Package fakecontainer provides a scriptable in-memory container.Handle.
//
// Tests configure how many state polls a boot takes, how long addresses take
// to appear, and which operations fail, then assert on the recorded calls.
package fakecontainer

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
)

// Container is a fake container.Handle. The exported fields script its
// behavior and must be set before the handle is shared.
type Container struct {
	// PollsUntilRunning is how many State calls report Starting after Start
	// before the container reports Running.
	PollsUntilRunning int

	// Addresses are reported once the container is running and more than
	// AddressesAfter NetworkAddresses calls have been made. Nil means the
	// network never comes up.
	Addresses      []string
	AddressesAfter int

	CreateErr   error
	StateErr    error
	StartErr    error
	StopErr     error
	ShutdownErr error
	DestroyErr  error

	// RunFunc decides the exit code of commands run inside the container.
	// When nil every command exits 0.
	RunFunc func(argv []string) (int, error)

	// Root is returned by RootFS.
	Root string

	mu         sync.Mutex
	name       string
	exists     bool
	state      container.State
	spec       container.Spec
	startPolls int
	addrCalls  int
	calls      []string
	runs       [][]string
}

// New returns a fake for a container that does not exist yet.
func New(name string) *Container {
	return &Container{name: name, Addresses: []string{"10.0.3.15"}}
}

// NewExisting returns a fake for a defined container in the given state.
func NewExisting(name string, state container.State) *Container {
	c := New(name)
	c.exists = true
	c.state = state
	return c
}

func (c *Container) record(op string) {
	c.calls = append(c.calls, op)
}

// Name implements container.Handle.
func (c *Container) Name() string { return c.name }

// Exists implements container.Handle.
func (c *Container) Exists(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("exists")
	return c.exists, nil
}

// Create implements container.Handle.
func (c *Container) Create(ctx context.Context, spec container.Spec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("create")
	if c.CreateErr != nil {
		return c.CreateErr
	}
	if c.exists {
		return errors.ErrAlreadyExists
	}
	c.exists = true
	c.spec = spec
	c.state = container.StateStopped
	return nil
}

// Start implements container.Handle.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("start")
	if c.StartErr != nil {
		return c.StartErr
	}
	if !c.exists {
		return errors.ErrNotFound
	}
	c.startPolls = 0
	c.addrCalls = 0
	if c.PollsUntilRunning == 0 {
		c.state = container.StateRunning
	} else {
		c.state = container.StateStarting
	}
	return nil
}

// State implements container.Handle.
func (c *Container) State(ctx context.Context) (container.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("state")
	if c.StateErr != nil {
		return container.StateUndefined, c.StateErr
	}
	if c.state == container.StateStarting {
		c.startPolls++
		if c.startPolls >= c.PollsUntilRunning {
			c.state = container.StateRunning
		}
	}
	return c.state, nil
}

// NetworkAddresses implements container.Handle.
func (c *Container) NetworkAddresses(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("addresses")
	if c.state != container.StateRunning {
		return nil, nil
	}
	c.addrCalls++
	if c.addrCalls <= c.AddressesAfter {
		return nil, nil
	}
	return slices.Clone(c.Addresses), nil
}

// Running implements container.Handle.
func (c *Container) Running(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("running")
	return c.StateErr == nil && c.state == container.StateRunning
}

// Stop implements container.Handle.
func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("stop")
	if c.StopErr != nil {
		return c.StopErr
	}
	c.state = container.StateStopped
	return nil
}

// Shutdown implements container.Handle.
func (c *Container) Shutdown(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("shutdown")
	if c.ShutdownErr != nil {
		return c.ShutdownErr
	}
	c.state = container.StateStopped
	return nil
}

// Destroy implements container.Handle.
func (c *Container) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("destroy")
	if c.DestroyErr != nil {
		return c.DestroyErr
	}
	if !c.exists {
		return errors.ErrNotFound
	}
	c.exists = false
	c.state = container.StateDestroyed
	return nil
}

// Run implements container.Handle.
func (c *Container) Run(ctx context.Context, argv []string) (int, error) {
	c.mu.Lock()
	c.record("run")
	c.runs = append(c.runs, slices.Clone(argv))
	running := c.state == container.StateRunning
	fn := c.RunFunc
	c.mu.Unlock()

	if !running {
		return -1, fmt.Errorf("container %s is not running", c.name)
	}
	if fn == nil {
		return 0, nil
	}
	return fn(argv)
}

// RootFS implements container.Handle.
func (c *Container) RootFS(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists {
		return "", errors.ErrNotFound
	}
	return c.Root, nil
}

// Calls returns the operations invoked so far, in order.
func (c *Container) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Count returns how many times op was invoked.
func (c *Container) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == op {
			n++
		}
	}
	return n
}

// Runs returns the argv of every Run call.
func (c *Container) Runs() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.runs)
}

// Spec returns the spec the container was created with.
func (c *Container) Spec() container.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// SetState forces the container into state, for simulating external changes.
func (c *Container) SetState(state container.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// Driver hands out fakes by name, creating them on first use.
type Driver struct {
	mu         sync.Mutex
	containers map[string]*Container
}

// NewDriver returns a Driver preloaded with the given containers.
func NewDriver(containers ...*Container) *Driver {
	d := &Driver{containers: make(map[string]*Container)}
	for _, c := range containers {
		d.containers[c.name] = c
	}
	return d
}

// Name implements container.Driver.
func (d *Driver) Name() string { return "fake" }

// Open implements container.Driver.
func (d *Driver) Open(name string, stdout, stderr io.Writer) (container.Handle, error) {
	return d.Get(name), nil
}

// Get returns the fake for name, creating it if needed.
func (d *Driver) Get(name string) *Container {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[name]
	if !ok {
		c = New(name)
		d.containers[name] = c
	}
	return c
}
