package pipeline

import (
	"context"
	"time"

	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
)

// LocalFunc is a step body that runs in the cibox process rather than inside
// the container. It returns the exit code to report; a non-nil error marks
// the step failed even when the code is zero.
type LocalFunc func(ctx context.Context, h container.Handle) (int, error)

// Step is a stateless descriptor of one unit of work. Exactly one of Argv
// and Action is set.
type Step struct {
	Label  string
	Argv   []string
	Action LocalFunc
}

// Command returns a step that runs argv inside the container.
func Command(label string, argv ...string) Step {
	return Step{Label: label, Argv: argv}
}

// Local returns a step that runs fn in the cibox process.
func Local(label string, fn LocalFunc) Step {
	return Step{Label: label, Action: fn}
}

// IsLocal reports whether the step runs outside the container.
func (s Step) IsLocal() bool {
	return s.Action != nil
}

// Outcome is the result classification of one step.
type Outcome int

const (
	// OutcomeSuccess means the step exited zero.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the step exited non-zero or could not be invoked.
	OutcomeFailure
	// OutcomeSkipped means the step never ran because the pipeline aborted
	// or was cancelled first.
	OutcomeSkipped
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "ok"
	case OutcomeFailure:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepResult is produced once per step per run and never persisted.
type StepResult struct {
	Label    string
	ExitCode int
	Outcome  Outcome
	// Err is a *errors.StepError for failed steps and nil otherwise.
	Err      error
	Duration time.Duration
}

// Pipeline is a named, ordered list of steps.
type Pipeline struct {
	Name  string
	Steps []Step
	// AbortOnFailure stops the pipeline at the first failed step. The
	// remaining steps are reported as skipped.
	AbortOnFailure bool
}

// Append returns a copy of p with steps added at the end.
func (p Pipeline) Append(steps ...Step) Pipeline {
	out := p
	out.Steps = make([]Step, 0, len(p.Steps)+len(steps))
	out.Steps = append(out.Steps, p.Steps...)
	out.Steps = append(out.Steps, steps...)
	return out
}

// Result is the aggregate outcome of one pipeline run, with one StepResult
// per declared step in declaration order.
type Result struct {
	Pipeline string
	Steps    []StepResult
	// Interrupted holds the context error when the run was cancelled.
	Interrupted error
}

// Failed returns the failed steps in order.
func (r Result) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailure {
			failed = append(failed, s)
		}
	}
	return failed
}

// Count returns the number of steps with outcome o.
func (r Result) Count(o Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// OK reports whether every step succeeded.
func (r Result) OK() bool {
	return r.Interrupted == nil && r.Count(OutcomeSuccess) == len(r.Steps)
}

// Err joins the step errors and any interruption, or returns nil when the
// run was clean.
func (r Result) Err() error {
	var errs []error
	for _, s := range r.Failed() {
		errs = append(errs, s.Err)
	}
	if r.Interrupted != nil {
		errs = append(errs, r.Interrupted)
	}
	return errors.Join(errs...)
}
