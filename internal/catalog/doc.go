// Package catalog defines the named pipelines cibox can run and the
// dependencies between them.
//
// The standard catalog holds provision, clone_backend, setup_backend and
// run_tests. A pipeline declares the pipelines it needs as [Dependency]
// values, each optionally guarded by an Unless [Check]: clone_backend needs
// provision unless git already runs in the container. [Catalog.Resolve]
// turns those declarations into a run order before anything executes, so
// no pipeline starts another one from inside its steps.
//
// [Catalog.Validate] checks required configuration for the whole
// dependency closure and never touches a container. Callers run it before
// booting anything so that a missing GIT_URL fails with
// errors.ErrMissingConfiguration and zero container operations.
//
// Local actions reach files inside the container through its rootfs on the
// host. They go through an afero.Fs and a command.Runner so tests can use an
// in-memory filesystem and a recording runner.
package catalog
