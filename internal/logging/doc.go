// Package logging provides structured logging for cibox runs.
//
// It wraps Go's log/slog to write JSON lines that carry the run, container,
// pipeline and step they belong to, so a failed provisioning run can be
// reconstructed after the fact with "cibox logs".
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Scoped child loggers (run ID, container, pipeline, step)
//   - Size-based rotation with optional gzip compression of backups
//   - Reading and filtering entries across the active file and its backups
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{
//	    Dir:      "/home/me/.local/state/cibox",
//	    Level:    "INFO",
//	    Rotation: logging.DefaultRotationConfig(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	stepLog := logger.WithContainer("test").WithPipeline("provision").WithStep("apt-get update")
//	stepLog.Info("step finished", "exit_code", 0, "duration_ms", 5123)
//
// # Reading Logs
//
//	entries, err := logging.ReadEntries(dir)
//	entries = logging.FilterEntries(entries, logging.Filter{Container: "test", Level: "WARN"})
//	_ = logging.WriteText(os.Stdout, entries)
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// share the parent's writer; only the root logger should be closed.
package logging
