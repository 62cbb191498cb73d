// Package pipeline executes ordered step lists against a container.
//
// A [Step] is either an in-container command, run through the handle's
// attach-and-run capability, or a [LocalFunc] run in the cibox process for
// work that touches host paths. The [Executor] runs steps strictly in order,
// one at a time, and never retries. A failed step is recorded and the next
// step still runs unless the [Pipeline] sets AbortOnFailure.
//
// Every run returns a [Result] with one [StepResult] per declared step, so
// callers assert on outcomes rather than on printed text. A [Sink] mirrors
// the same events for humans and [Metrics] counts them for Prometheus.
//
// # Usage
//
//	exec := pipeline.NewExecutor(
//	    pipeline.WithLogger(logger),
//	    pipeline.WithSink(pipeline.NewTextSink(os.Stdout, os.Stderr)),
//	)
//	res := exec.Run(ctx, handle, pipeline.Pipeline{
//	    Name: "provision",
//	    Steps: []pipeline.Step{
//	        pipeline.Command("update package index", "apt-get", "update"),
//	    },
//	})
//	if err := res.Err(); err != nil {
//	    // one *errors.StepError per failed step
//	}
package pipeline
