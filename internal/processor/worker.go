package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"fisher/internal/job"
	"fisher/internal/logging"
)

// Output is what a Worker reports back to the Scheduler when a job finishes.
type Output struct {
	WorkerID   int
	Job        *scheduledJob
	Success    bool
	ExitStatus int
	Err        error
}

// execFunc runs a hook script in workDir. Overridable in tests so the
// worker's protocol can be exercised without spawning real processes.
type execFunc func(ctx context.Context, scriptPath string, env []string, workDir string) (exitStatus int, err error)

// Worker is one long-lived execution slot. It owns a single goroutine and a
// one-slot inbox, per the channel-driven discipline: simpler than
// park/unpark and equally correct.
type Worker struct {
	id        int
	inbox     chan *scheduledJob
	stop      chan struct{}
	done      chan struct{}
	output    chan<- Output
	log       *logging.Logger
	exec      execFunc
	staticEnv map[string]string

	cancelMu sync.Mutex
	cancel   context.CancelFunc // set only while a job is running
}

// NewWorker builds a Worker that reports completions onto output and starts
// its goroutine immediately. The caller must eventually call Stop. staticEnv
// is the operator-configured environment merged into every job this worker
// runs, taking precedence over provider-contributed env.
func NewWorker(id int, output chan<- Output, log *logging.Logger, staticEnv map[string]string) *Worker {
	w := &Worker{
		id:        id,
		inbox:     make(chan *scheduledJob, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		output:    output,
		log:       log,
		exec:      runScript,
		staticEnv: staticEnv,
	}
	go w.loop()
	return w
}

// Terminate cancels the context backing this worker's in-flight child
// process, if any, causing exec.CommandContext to send it a termination
// signal. It is a no-op when the worker is idle. Used only after a Stop's
// shutdown grace has expired.
func (w *Worker) Terminate() {
	w.cancelMu.Lock()
	defer w.cancelMu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Submit hands a job to the worker. The caller (the Scheduler) must only
// call Submit when it believes this worker is idle; Submit itself does not
// check. A busy worker has already taken its job out of the one-slot inbox,
// so a Submit to it is buffered and runs after the current job, and a
// further Submit blocks; invariant 1 rests on the Scheduler's bookkeeping.
func (w *Worker) Submit(j *scheduledJob) {
	w.inbox <- j
}

// Stop signals the worker to exit after finishing any in-flight job, and
// blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case sj := <-w.inbox:
			w.run(sj)
		}
	}
}

func (w *Worker) run(sj *scheduledJob) {
	j := sj.job
	env, bodyPath, workDir, cleanup, err := w.buildEnv(j)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		w.log.LogSpawnFailed(j.HookName, j.ID, w.id, err)
		w.output <- Output{WorkerID: w.id, Job: sj, Success: false, ExitStatus: -1, Err: err}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancelMu.Lock()
	w.cancel = cancel
	w.cancelMu.Unlock()

	exitStatus, runErr := w.exec(ctx, sj.hook.ScriptPath, env, workDir)

	w.cancelMu.Lock()
	w.cancel = nil
	w.cancelMu.Unlock()
	cancel()

	success := runErr == nil && exitStatus == 0
	if runErr != nil {
		w.log.LogSpawnFailed(j.HookName, j.ID, w.id, runErr)
	}
	_ = bodyPath
	w.log.LogJobCompleted(j.HookName, j.ID, w.id, success, exitStatus)
	w.output <- Output{WorkerID: w.id, Job: sj, Success: success, ExitStatus: exitStatus, Err: runErr}
}

// buildEnv merges, in increasing precedence, the process environment,
// provider-contributed environment, the operator's static environment, and
// the reserved FISHER_* keys injected last and unconditionally by the
// worker. It also writes the request body to a temp file and creates a
// per-job working directory, returning both paths; cleanup removes both.
func (w *Worker) buildEnv(j *job.Job) (env []string, bodyPath string, workDir string, cleanup func(), err error) {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := splitEnv(kv); ok {
			merged[k] = v
		}
	}
	for k, v := range j.Env {
		merged[k] = v
	}
	for k, v := range w.staticEnv {
		merged[k] = v
	}

	var body []byte
	if j.Request != nil {
		body = j.Request.Body
	}
	f, err := os.CreateTemp("", "fisher-body-*")
	if err != nil {
		return nil, "", "", nil, fmt.Errorf("create request body temp file: %w", err)
	}
	cleanup = func() { os.Remove(f.Name()) }
	if _, err := f.Write(body); err != nil {
		f.Close()
		return nil, "", "", cleanup, fmt.Errorf("write request body temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, "", "", cleanup, fmt.Errorf("close request body temp file: %w", err)
	}

	dir, err := os.MkdirTemp("", "fisher-job-*")
	if err != nil {
		return nil, "", "", cleanup, fmt.Errorf("create job working directory: %w", err)
	}
	prevCleanup := cleanup
	cleanup = func() {
		prevCleanup()
		os.RemoveAll(dir)
	}

	sourceIP := ""
	if j.Request != nil {
		sourceIP = j.Request.SourceIP
	}
	merged["FISHER_REQUEST_BODY"] = f.Name()
	merged["FISHER_REQUEST_IP"] = sourceIP
	merged["FISHER_HOOK_NAME"] = j.HookName

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out, f.Name(), dir, cleanup, nil
}

func splitEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// runScript is the default execFunc: it runs the script as a child process,
// rooted at workDir, and returns its exit status.
func runScript(ctx context.Context, scriptPath string, env []string, workDir string) (int, error) {
	cmd := exec.CommandContext(ctx, scriptPath)
	cmd.Env = env
	cmd.Dir = workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("spawn %s: %w", scriptPath, err)
	}
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("run %s: %w: %s", scriptPath, err, stderr.String())
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

