// Package errors provides centralized error definitions and error handling utilities
// for cibox. It defines the sentinel taxonomy shared by the lifecycle controller,
// the pipeline executor and the pipeline catalog, the structured error types
// that carry the container and operation involved, and the mapping from errors
// to process exit codes.
//
// # Taxonomy
//
//   - ErrNotFound: operation on a container with no rootfs. Fail fast.
//   - ErrStartFailure / ErrNetworkUnavailable: the container did not become usable.
//   - ErrStopFailure: graceful shutdown did not finish within its budget.
//   - ErrMissingConfiguration: a required setting or credential is absent. Fail fast.
//   - ErrStepFailure: a pipeline step exited non-zero. Reported per step, execution continues.
//
// Nothing in cibox retries automatically; [IsRecoverable] only tells callers
// whether the run as a whole kept going after the error was recorded.
//
// # Usage
//
//	err := errors.NewContainerError("test", "destroy", cause)
//	if errors.Is(err, errors.ErrNotFound) { ... }
//
//	var cerr *errors.ContainerError
//	if errors.As(err, &cerr) { fmt.Println(cerr.Container) }
//
//	os.Exit(errors.ExitCode(err))
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for failures the run continues past.
	SeverityWarning Severity = iota
	// SeverityError is for failures that end the current command.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Container lifecycle sentinel errors
var (
	// ErrNotFound indicates no container with the requested name is defined.
	ErrNotFound = New("container not found")
	// ErrAlreadyExists indicates create was asked for a name that is already defined.
	ErrAlreadyExists = New("container already exists")
	// ErrStartFailure indicates the container could not be brought to a usable running state.
	ErrStartFailure = New("container failed to start")
	// ErrNetworkUnavailable indicates the container is running but never reported an address.
	ErrNetworkUnavailable = fmt.Errorf("%w: no network address", ErrStartFailure)
	// ErrStopFailure indicates graceful shutdown did not complete within its budget.
	ErrStopFailure = New("container failed to stop cleanly")
	// ErrStateUnknown indicates the runtime could not report whether the
	// container is running, so it was left alone.
	ErrStateUnknown = fmt.Errorf("%w: state could not be read", ErrStopFailure)
	// ErrDestroyFailure indicates the runtime refused to remove the container.
	ErrDestroyFailure = New("container could not be destroyed")
	// ErrLocked indicates another cibox process holds the container lock.
	ErrLocked = New("container is locked by another process")
)

// Pipeline sentinel errors
var (
	// ErrStepFailure indicates a pipeline step exited non-zero or could not be run.
	ErrStepFailure = New("pipeline step failed")
	// ErrUnknownPipeline indicates a pipeline name not present in the catalog.
	ErrUnknownPipeline = New("unknown pipeline")
	// ErrDependencyCycle indicates pipelines that depend on each other.
	ErrDependencyCycle = New("pipeline dependency cycle")
	// ErrPreconditionUnmet indicates a dependency pipeline ran but its check still fails.
	ErrPreconditionUnmet = New("pipeline precondition unmet")
)

// Configuration sentinel errors
var (
	// ErrMissingConfiguration indicates a required setting or credential is absent.
	ErrMissingConfiguration = New("missing configuration")
	// ErrInvalidSpec indicates a malformed container name or distro/release/arch triple.
	ErrInvalidSpec = New("invalid container spec")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ContainerError names the container and the lifecycle operation that failed.
//
// Example:
//
//	err := errors.NewContainerError("test", "stop", errors.ErrStopFailure)
//	fmt.Println(err) // "stop container 'test': container failed to stop cleanly"
type ContainerError struct {
	baseError
	Container string
	Op        string
}

// NewContainerError creates a new ContainerError.
func NewContainerError(container, op string, cause error) *ContainerError {
	return &ContainerError{
		baseError: baseError{
			message:  fmt.Sprintf("%s container '%s'", op, container),
			cause:    cause,
			severity: SeverityError,
		},
		Container: container,
		Op:        op,
	}
}

// WithSeverity sets the error severity.
func (e *ContainerError) WithSeverity(s Severity) *ContainerError {
	e.severity = s
	return e
}

// StepError records one failed pipeline step.
type StepError struct {
	baseError
	Pipeline string
	Step     string
	ExitCode int
}

// NewStepError creates a StepError. cause may be nil when the step ran and
// simply exited non-zero.
func NewStepError(pipeline, step string, exitCode int, cause error) *StepError {
	if cause == nil {
		cause = ErrStepFailure
	} else if !errors.Is(cause, ErrStepFailure) {
		cause = fmt.Errorf("%w: %w", ErrStepFailure, cause)
	}
	return &StepError{
		baseError: baseError{
			message:  fmt.Sprintf("%s: step %q exited %d", pipeline, step, exitCode),
			cause:    cause,
			severity: SeverityWarning,
		},
		Pipeline: pipeline,
		Step:     step,
		ExitCode: exitCode,
	}
}

// MissingConfigError names the setting that was required but empty.
type MissingConfigError struct {
	baseError
	Key  string
	Hint string
}

// NewMissingConfigError creates a MissingConfigError for key. hint is shown
// to the user on how to supply it.
func NewMissingConfigError(key, hint string) *MissingConfigError {
	return &MissingConfigError{
		baseError: baseError{
			message:  fmt.Sprintf("%s is not set", key),
			cause:    ErrMissingConfiguration,
			severity: SeverityError,
		},
		Key:  key,
		Hint: hint,
	}
}

// Error returns the formatted error message.
func (e *MissingConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.baseError.Error())
	if e.Hint != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Hint)
		sb.WriteString(")")
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// Process exit codes returned by the cibox binary.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitStepFailure          = 2
	ExitNotFound             = 3
	ExitMissingConfiguration = 4
	ExitStartFailure         = 5
	ExitStopFailure          = 6
	ExitLocked               = 7
)

// ExitCode maps an error to the process exit code. The most specific category
// wins; step failures only decide the code when nothing worse happened.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Is(err, ErrLocked):
		return ExitLocked
	case Is(err, ErrNotFound):
		return ExitNotFound
	case Is(err, ErrMissingConfiguration), Is(err, ErrInvalidSpec):
		return ExitMissingConfiguration
	case Is(err, ErrStartFailure):
		return ExitStartFailure
	case Is(err, ErrStopFailure):
		return ExitStopFailure
	case Is(err, ErrStepFailure):
		return ExitStepFailure
	default:
		return ExitFailure
	}
}

// IsRecoverable returns true for failures the run records and continues past.
// Only step failures are recoverable by design.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	for _, fatal := range []error{ErrNotFound, ErrMissingConfiguration, ErrStartFailure, ErrStopFailure, ErrLocked, ErrInvalidSpec} {
		if Is(err, fatal) {
			return false
		}
	}
	return Is(err, ErrStepFailure)
}

// SeverityOf returns the severity of err, defaulting to SeverityError for
// errors that do not carry one.
func SeverityOf(err error) Severity {
	var s interface{ Severity() Severity }
	if As(err, &s) {
		return s.Severity()
	}
	return SeverityError
}
