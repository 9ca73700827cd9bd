// Package logging provides the structured logger used across fisher's
// components. Every log line carries a consistent attribute set (hook name,
// job id, worker id) rather than ad hoc slog calls scattered through the
// core.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON-handler slog.Logger writing to w (stdout if w is nil) at
// the given level. Unknown level strings default to info.
func New(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger wraps a *slog.Logger with fisher-specific helpers so call sites
// name what happened rather than hand-assembling attribute lists.
type Logger struct {
	base *slog.Logger
}

// Wrap adapts an existing slog.Logger into a Logger.
func Wrap(base *slog.Logger) *Logger {
	return &Logger{base: base}
}

func (l *Logger) slog() *slog.Logger {
	if l == nil || l.base == nil {
		return slog.Default()
	}
	return l.base
}

// LogJobEnqueued records acceptance of a job into a hook's queue.
func (l *Logger) LogJobEnqueued(hook, jobID string, queueDepth int) {
	l.slog().Info("job enqueued", "hook", hook, "job_id", jobID, "queue_depth", queueDepth)
}

// LogJobDispatched records a job handed to a worker.
func (l *Logger) LogJobDispatched(hook, jobID string, workerID int) {
	l.slog().Info("job dispatched", "hook", hook, "job_id", jobID, "worker_id", workerID)
}

// LogJobCompleted records a worker's execution outcome.
func (l *Logger) LogJobCompleted(hook, jobID string, workerID int, success bool, exitStatus int) {
	l.slog().Info("job completed", "hook", hook, "job_id", jobID, "worker_id", workerID,
		"success", success, "exit_status", exitStatus)
}

// LogSpawnFailed records a worker's failure to start the hook's process.
func (l *Logger) LogSpawnFailed(hook, jobID string, workerID int, err error) {
	l.slog().Error("spawn failed", "hook", hook, "job_id", jobID, "worker_id", workerID, "error", err)
}

// LogStatusEvent records a synthesized status job fired for an observer hook.
func (l *Logger) LogStatusEvent(observerHook, sourceHook, event, jobID string) {
	l.slog().Info("status event fired", "observer_hook", observerHook, "source_hook", sourceHook,
		"event", event, "job_id", jobID)
}

// LogHookLoadError records a single malformed hook file skipped during collection.
func (l *Logger) LogHookLoadError(path string, err error) {
	l.slog().Warn("hook skipped", "path", path, "error", err)
}

// LogReload records the outcome of a reload.
func (l *Logger) LogReload(hookCount int, err error) {
	if err != nil {
		l.slog().Error("reload failed", "error", err)
		return
	}
	l.slog().Info("reload complete", "hook_count", hookCount)
}

// LogFatal records an unrecoverable invariant violation immediately before
// the process aborts. Recovering from this class of error would corrupt
// queue accounting, so the caller is expected to os.Exit after logging.
func (l *Logger) LogFatal(msg string, err error) {
	l.slog().Error(msg, "error", err, "fatal", true)
}
