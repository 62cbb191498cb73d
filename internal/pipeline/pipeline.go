package pipeline

import (
	"context"
	"time"

	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
	"github.com/Iron-Ham/cibox/internal/logging"
)

// Executor runs pipelines one step at a time against a container.
type Executor struct {
	logger  *logging.Logger
	sink    Sink
	metrics *Metrics
	now     func() time.Time
}

// NewExecutor creates an Executor. Without options it logs nowhere and
// reports nowhere.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger: logging.NopLogger(),
		sink:   NopSink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes p's steps in declaration order and returns one StepResult per
// step. A failed step is recorded and, unless p.AbortOnFailure is set, the
// next step still runs. Nothing is retried.
//
// Cancelling ctx stops the run between steps; the steps not yet started are
// reported as skipped and Result.Interrupted holds ctx.Err().
func (e *Executor) Run(ctx context.Context, h container.Handle, p Pipeline) Result {
	log := e.logger.WithContainer(h.Name()).WithPipeline(p.Name)
	res := Result{Pipeline: p.Name, Steps: make([]StepResult, 0, len(p.Steps))}

	log.Info("pipeline started", "steps", len(p.Steps))
	start := e.now()

	halted := false
	for i, step := range p.Steps {
		if !halted && ctx.Err() != nil {
			res.Interrupted = ctx.Err()
			halted = true
		}
		if halted {
			res.Steps = append(res.Steps, StepResult{Label: step.Label, Outcome: OutcomeSkipped})
			e.sink.StepSkipped(p.Name, step, i, len(p.Steps))
			e.metrics.observe(p.Name, OutcomeSkipped, 0)
			continue
		}

		e.sink.StepStarted(p.Name, step, i, len(p.Steps))
		sr := e.runStep(ctx, log.WithStep(step.Label), h, p.Name, step)
		res.Steps = append(res.Steps, sr)
		e.sink.StepFinished(p.Name, sr, i, len(p.Steps))
		e.metrics.observe(p.Name, sr.Outcome, sr.Duration)

		if sr.Outcome == OutcomeFailure && p.AbortOnFailure {
			log.Warn("aborting pipeline after failed step", "step", step.Label)
			halted = true
		}
	}

	e.sink.PipelineFinished(res)
	log.Info("pipeline finished",
		"ok", res.Count(OutcomeSuccess),
		"failed", res.Count(OutcomeFailure),
		"skipped", res.Count(OutcomeSkipped),
		"duration_ms", e.now().Sub(start).Milliseconds())
	return res
}

func (e *Executor) runStep(ctx context.Context, log *logging.Logger, h container.Handle, pipeline string, step Step) StepResult {
	// Argv may carry credentials, so only the program name is logged.
	if step.IsLocal() {
		log.Debug("step started", "local", true)
	} else if len(step.Argv) > 0 {
		log.Debug("step started", "program", step.Argv[0], "args", len(step.Argv)-1)
	}
	start := e.now()

	var (
		code int
		err  error
	)
	if step.IsLocal() {
		code, err = step.Action(ctx, h)
	} else {
		code, err = h.Run(ctx, step.Argv)
	}

	sr := StepResult{Label: step.Label, ExitCode: code, Duration: e.now().Sub(start)}
	if err == nil && code == 0 {
		sr.Outcome = OutcomeSuccess
		log.Info("step succeeded", "exit_code", code, "duration_ms", sr.Duration.Milliseconds())
		return sr
	}

	sr.Outcome = OutcomeFailure
	sr.Err = errors.NewStepError(pipeline, step.Label, code, err)
	if err != nil {
		log.Error("step failed", "exit_code", code, "error", err.Error(), "duration_ms", sr.Duration.Milliseconds())
	} else {
		log.Warn("step failed", "exit_code", code, "duration_ms", sr.Duration.Milliseconds())
	}
	return sr
}
