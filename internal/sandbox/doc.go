// Package sandbox ties the lifecycle controller, the pipeline catalog and
// the executor together for one container. Each method is one cibox
// command.
//
// Pipeline commands check the configuration they need before the container
// is touched, then boot it if needed and run the resolved pipelines:
//
//	sb := sandbox.New(cfg, handle, ctrl, cat, sandbox.WithLogger(logger))
//	results, err := sb.Run(ctx, catalog.CloneBackend)
//
// Human status lines go to the configured output; the structured results
// and errors are returned to the caller.
package sandbox
