// Package command is the process-execution boundary for cibox.
//
// Everything that forks a host process (the lxc-* tools, local pipeline
// actions such as "fab check") goes through a [Runner] so tests can swap in
// the recording runner from the fakerunner subpackage.
package command

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes prepared commands.
type Runner interface {
	Run(cmd *exec.Cmd) error
	Output(cmd *exec.Cmd) ([]byte, error)
}

// RealRunner runs commands on the host.
type RealRunner struct{}

// New returns a Runner that executes commands for real.
func New() *RealRunner {
	return &RealRunner{}
}

// Run starts the command and waits for it to complete.
func (r *RealRunner) Run(cmd *exec.Cmd) error {
	return cmd.Run()
}

// Output runs the command and returns its standard output.
func (r *RealRunner) Output(cmd *exec.Cmd) ([]byte, error) {
	return cmd.Output()
}

// exitCoder is satisfied by *exec.ExitError and by the fake runner's errors.
type exitCoder interface {
	ExitCode() int
}

// ExitCode maps the error returned by a Runner to a process exit code.
//
// A nil error is exit code 0. An error carrying an exit status yields that
// status and a nil error, since a non-zero exit is an outcome rather than a
// failure to run. Anything else (binary missing, context cancelled) yields
// -1 and the original error.
func ExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		if code := coder.ExitCode(); code >= 0 {
			return code, nil
		}
	}
	return -1, err
}

// ExitError is a non-zero exit status not backed by a real process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Describe renders argv for log and status lines.
func Describe(argv []string) string {
	return strings.Join(argv, " ")
}
