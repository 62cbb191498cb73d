// Package fakerunner provides a recording command.Runner for tests.
package fakerunner

import (
	"os/exec"
	"reflect"
	"sync"
)

// Spec matches executed commands. Empty fields match anything.
type Spec struct {
	Path string
	Args []string
	Dir  string
}

// Matches reports whether cmd satisfies the spec. Args are compared against
// cmd.Args without the program name.
func (s Spec) Matches(cmd *exec.Cmd) bool {
	if s.Path != "" && s.Path != cmd.Path && (len(cmd.Args) == 0 || s.Path != cmd.Args[0]) {
		return false
	}
	if len(s.Args) > 0 && (len(cmd.Args) == 0 || !reflect.DeepEqual(s.Args, cmd.Args[1:])) {
		return false
	}
	if s.Dir != "" && s.Dir != cmd.Dir {
		return false
	}
	return true
}

type callback struct {
	spec Spec
	fn   func(cmd *exec.Cmd) ([]byte, error)
}

// Runner records every command it is asked to run. Commands with no matching
// callback succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	executed  []*exec.Cmd
	callbacks []callback
}

// New creates an empty Runner.
func New() *Runner {
	return &Runner{}
}

// WhenRunning registers fn for commands matching spec. Later registrations
// take precedence over earlier ones.
func (r *Runner) WhenRunning(spec Spec, fn func(cmd *exec.Cmd) ([]byte, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback{spec: spec, fn: fn})
}

// Run implements command.Runner.
func (r *Runner) Run(cmd *exec.Cmd) error {
	out, err := r.dispatch(cmd)
	if cmd.Stdout != nil && len(out) > 0 {
		_, _ = cmd.Stdout.Write(out)
	}
	return err
}

// Output implements command.Runner.
func (r *Runner) Output(cmd *exec.Cmd) ([]byte, error) {
	return r.dispatch(cmd)
}

func (r *Runner) dispatch(cmd *exec.Cmd) ([]byte, error) {
	r.mu.Lock()
	r.executed = append(r.executed, cmd)
	var fn func(cmd *exec.Cmd) ([]byte, error)
	for i := len(r.callbacks) - 1; i >= 0; i-- {
		if r.callbacks[i].spec.Matches(cmd) {
			fn = r.callbacks[i].fn
			break
		}
	}
	r.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(cmd)
}

// Executed returns the argv (including program name) of every command run so far.
func (r *Runner) Executed() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, 0, len(r.executed))
	for _, cmd := range r.executed {
		out = append(out, append([]string(nil), cmd.Args...))
	}
	return out
}

// Commands returns the executed commands themselves, for inspecting Dir or Env.
func (r *Runner) Commands() []*exec.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*exec.Cmd(nil), r.executed...)
}
