// Package processor implements the job-processing core: the Worker pool,
// the Scheduler that owns all queue state and dispatch decisions, the
// Processor Facade the HTTP front-end talks to, and the Request Pipeline
// that turns a request into a Job.
package processor

import (
	"fmt"
	"time"

	"fisher/internal/hooks"
	"fisher/internal/job"
	"fisher/internal/logging"
	"fisher/internal/metrics"
)

// scheduledJob bundles a Job with the Hook it was resolved against at
// creation time, so the reference a Job carries to its Hook stays valid for
// the Job's entire lifetime even across an intervening reload.
type scheduledJob struct {
	job       *job.Job
	hook      *hooks.Hook
	enqueued  time.Time
	dispatched time.Time
}

// Health is the point-in-time snapshot returned by the Scheduler's health
// command.
type Health struct {
	Queued      int
	Executing   int
	WorkersBusy int
	Processed   uint64
}

// state is the scheduler's run state.
type state int

const (
	stateRunning state = iota
	stateLocked
	stateStopping
)

// statusHandler is invoked by the scheduler when a job completes and some
// hook's status subscription matches, so it can build and enqueue a
// synthesized job without the scheduler needing to import the pipeline
// package (which would create an import cycle: pipeline depends on the
// scheduler to enqueue).
type statusHandler func(observerHook *hooks.Hook, sourceHookName, event string, sourceJob *job.Job) *job.Job

// AuditSink receives fire-and-forget completion records. Implemented by
// internal/audit; nil disables the audit trail.
type AuditSink interface {
	Record(hookName, jobID string, success bool, exitStatus int, started, finished time.Time)
}

// Scheduler owns all queue state and is mutated only by its own goroutine;
// every other goroutine communicates through the command channel. This is
// the only synchronization discipline applied to scheduler state.
type Scheduler struct {
	repo    *hooks.Repository
	workers []*Worker
	output  chan Output
	cmd     chan command
	log     *logging.Logger
	audit   AuditSink
	queueCap int
	buildStatusJob statusHandler

	// fields below are only ever touched by the run() goroutine.
	queues         map[string][]*scheduledJob // keyed by hook ID
	runningPerHook map[string]int
	idleWorkers    map[int]bool
	lastServedIdx  int
	st             state
	processed      uint64
	closed         chan struct{}

	// fatal carries the one KindInternalInvariantViolation error this
	// scheduler will ever report, if the "a worker reports completion while
	// believed idle" invariant is ever broken. Buffered so handleCompletion
	// never blocks delivering it; main is expected to select on Facade.Fatal
	// and abort the process.
	fatal chan error
}

type command struct {
	kind  cmdKind
	job   *scheduledJob
	reply chan any
}

type cmdKind int

const (
	cmdEnqueue cmdKind = iota
	cmdHealth
	cmdLock
	cmdUnlock
	cmdCleanup
	cmdStop
)

// NewScheduler builds a Scheduler with maxThreads workers and starts its
// command-processing goroutine. staticEnv is the operator-configured
// environment merged into every job, passed straight through to each Worker.
func NewScheduler(repo *hooks.Repository, maxThreads, queueCap int, log *logging.Logger, audit AuditSink, buildStatusJob statusHandler, staticEnv map[string]string) *Scheduler {
	s := &Scheduler{
		repo:           repo,
		output:         make(chan Output, maxThreads),
		cmd:            make(chan command),
		log:            log,
		audit:          audit,
		queueCap:       queueCap,
		buildStatusJob: buildStatusJob,
		queues:         make(map[string][]*scheduledJob),
		runningPerHook: make(map[string]int),
		idleWorkers:    make(map[int]bool),
		closed:         make(chan struct{}),
		fatal:          make(chan error, 1),
	}
	for i := 0; i < maxThreads; i++ {
		s.workers = append(s.workers, NewWorker(i, s.output, log, staticEnv))
		s.idleWorkers[i] = true
	}
	go s.run()
	return s
}

// Fatal reports the scheduler's one internal-invariant-violation error, if
// any. main selects on it alongside its other shutdown signals and aborts
// the process when it fires.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatal
}

// Workers returns the fixed worker list. The slice and its contents are
// established once at construction and never mutated afterward, so reading
// it from any goroutine (e.g. Facade.Stop, to terminate hung children after
// a shutdown grace expires) needs no synchronization with the run() loop.
func (s *Scheduler) Workers() []*Worker {
	return s.workers
}

func (s *Scheduler) run() {
	defer close(s.closed)
	for {
		select {
		case c := <-s.cmd:
			done := s.handle(c)
			if done {
				return
			}
		case out := <-s.output:
			s.handleCompletion(out)
		}
	}
}

func (s *Scheduler) handle(c command) (stop bool) {
	switch c.kind {
	case cmdEnqueue:
		err := s.enqueue(c.job)
		c.reply <- err
	case cmdHealth:
		c.reply <- s.health()
	case cmdLock:
		s.st = stateLocked
		c.reply <- struct{}{}
	case cmdUnlock:
		if s.st == stateLocked {
			s.st = stateRunning
		}
		s.dispatch()
		c.reply <- struct{}{}
	case cmdCleanup:
		s.cleanup()
		c.reply <- struct{}{}
	case cmdStop:
		s.st = stateStopping
		s.drainAndStop()
		c.reply <- struct{}{}
		return true
	}
	return false
}

// enqueue is invoked only from the scheduler goroutine via handle().
func (s *Scheduler) enqueue(sj *scheduledJob) error {
	hookID := sj.hook.ID
	if s.queueCap > 0 && len(s.queues[hookID]) >= s.queueCap {
		return newError(KindBackpressure, fmt.Sprintf("hook %q queue is full (cap %d)", sj.hook.Name, s.queueCap))
	}
	sj.enqueued = now()
	s.queues[hookID] = append(s.queues[hookID], sj)
	metrics.SetQueueDepth(sj.hook.Name, len(s.queues[hookID]))
	if s.log != nil {
		s.log.LogJobEnqueued(sj.hook.Name, sj.job.ID, len(s.queues[hookID]))
	}
	s.dispatch()
	return nil
}

// dispatch implements the round-robin scan-and-assign algorithm. It is a
// no-op unless st == stateRunning.
func (s *Scheduler) dispatch() {
	if s.st != stateRunning {
		return
	}
	for {
		hookID, sj := s.pickNext()
		if sj == nil {
			return
		}
		workerID, ok := s.pickIdleWorker()
		if !ok {
			return
		}
		s.popFront(hookID)
		s.runningPerHook[hookID]++
		s.idleWorkers[workerID] = false
		sj.dispatched = now()
		metrics.SetQueueDepth(sj.hook.Name, len(s.queues[hookID]))
		metrics.ObserveDispatchLatency(sj.hook.Name, sj.dispatched.Sub(sj.enqueued))
		if s.log != nil {
			s.log.LogJobDispatched(sj.hook.Name, sj.job.ID, workerID)
		}
		s.workers[workerID].Submit(sj)
	}
}

// pickNext scans queues round-robin starting just past the last served hook
// id, skipping empty queues and non-parallel hooks already running.
func (s *Scheduler) pickNext() (hookID string, sj *scheduledJob) {
	names := s.repo.Current().Names()
	if len(names) == 0 {
		// Hooks may still have queued jobs for names no longer present
		// (pending a cleanup); fall back to scanning queues directly.
		for id, q := range s.queues {
			if len(q) == 0 {
				continue
			}
			return id, q[0]
		}
		return "", nil
	}

	// Build an ordered list of known hook IDs (current snapshot order),
	// plus any queued hook IDs belonging to hooks since removed, so queued
	// jobs for a stale hook still get a dispatch chance (they'd otherwise
	// only be removed via cleanup() while locked).
	order := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		h := s.repo.Current().Get(n)
		if h == nil {
			continue
		}
		order = append(order, h.ID)
		seen[h.ID] = true
	}
	for id := range s.queues {
		if !seen[id] {
			order = append(order, id)
		}
	}
	if len(order) == 0 {
		return "", nil
	}

	for i := 1; i <= len(order); i++ {
		idx := (s.lastServedIdx + i) % len(order)
		id := order[idx]
		q := s.queues[id]
		if len(q) == 0 {
			continue
		}
		h := s.hookByID(id)
		if h != nil && !h.Parallel && s.runningPerHook[id] >= 1 {
			continue
		}
		s.lastServedIdx = idx
		return id, q[0]
	}
	return "", nil
}

func (s *Scheduler) hookByID(id string) *hooks.Hook {
	for _, n := range s.repo.Current().Names() {
		h := s.repo.Current().Get(n)
		if h != nil && h.ID == id {
			return h
		}
	}
	return nil
}

func (s *Scheduler) popFront(hookID string) {
	q := s.queues[hookID]
	s.queues[hookID] = q[1:]
}

func (s *Scheduler) pickIdleWorker() (int, bool) {
	best := -1
	for id, idle := range s.idleWorkers {
		if idle && (best == -1 || id < best) {
			best = id
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

func (s *Scheduler) handleCompletion(out Output) {
	if s.idleWorkers[out.WorkerID] {
		// §7's canonical example: a worker reports completion while the
		// scheduler already believes it idle. The queue-accounting
		// invariants this goroutine maintains cannot be trusted past this
		// point, so this is fatal rather than recoverable.
		violation := newError(KindInternalInvariantViolation,
			fmt.Sprintf("worker %d reported completion while scheduler believed it idle", out.WorkerID))
		if s.log != nil {
			s.log.LogFatal("internal invariant violation", violation)
		}
		select {
		case s.fatal <- violation:
		default:
		}
		return
	}

	hookID := out.Job.hook.ID
	s.idleWorkers[out.WorkerID] = true
	if s.runningPerHook[hookID] > 0 {
		s.runningPerHook[hookID]--
	}
	s.processed++
	metrics.IncJobsProcessed(out.Job.hook.Name, out.Success)

	if s.audit != nil {
		go s.audit.Record(out.Job.hook.Name, out.Job.job.ID, out.Success, out.ExitStatus, out.Job.dispatched, now())
	}

	s.emitStatusEvents(out)
	s.dispatch()
}

// emitStatusEvents synthesizes and enqueues status jobs for every observer
// hook subscribed to this completion. Status jobs never themselves trigger
// further status events, preventing feedback loops.
func (s *Scheduler) emitStatusEvents(out Output) {
	if out.Job.job.IsStatusEvent || s.buildStatusJob == nil {
		return
	}
	event := "job_completed"
	if !out.Success {
		event = "job_failed"
	}
	for _, name := range s.repo.Current().Names() {
		observer := s.repo.Current().Get(name)
		if observer == nil || !observer.MatchesEvent(out.Job.hook.Name, event) {
			continue
		}
		statusJob := s.buildStatusJob(observer, out.Job.hook.Name, event, out.Job.job)
		if statusJob == nil {
			continue
		}
		if s.log != nil {
			s.log.LogStatusEvent(observer.Name, out.Job.hook.Name, event, statusJob.ID)
		}
		_ = s.enqueue(&scheduledJob{job: statusJob, hook: observer})
	}
}

// cleanup drops every queued job whose hook is no longer present in the
// current snapshot. Callers must hold the scheduler locked and have no jobs
// executing; the command path only calls this from Lock/reload sequencing.
func (s *Scheduler) cleanup() {
	current := s.repo.Current()
	for hookID, q := range s.queues {
		if len(q) == 0 {
			continue
		}
		stillPresent := false
		for _, n := range current.Names() {
			if h := current.Get(n); h != nil && h.ID == hookID {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			delete(s.queues, hookID)
			delete(s.runningPerHook, hookID)
		}
	}
}

func (s *Scheduler) health() Health {
	queued := 0
	for _, q := range s.queues {
		queued += len(q)
	}
	executing := 0
	for _, n := range s.runningPerHook {
		executing += n
	}
	busy := 0
	for _, idle := range s.idleWorkers {
		if !idle {
			busy++
		}
	}
	return Health{Queued: queued, Executing: executing, WorkersBusy: busy, Processed: s.processed}
}

// drainAndStop waits for all in-flight jobs to complete (draining output
// events as they arrive) and then stops every worker. It does not enforce
// the shutdown grace timeout itself; Facade.Stop does, because only it has
// a clean way to also kill the underlying workers after expiry without the
// scheduler goroutine deadlocking on output delivery.
func (s *Scheduler) drainAndStop() {
	for s.anyRunning() {
		out := <-s.output
		s.handleCompletionDuringStop(out)
	}
	for _, w := range s.workers {
		w.Stop()
	}
}

func (s *Scheduler) anyRunning() bool {
	for _, n := range s.runningPerHook {
		if n > 0 {
			return true
		}
	}
	return false
}

func (s *Scheduler) handleCompletionDuringStop(out Output) {
	hookID := out.Job.hook.ID
	if s.runningPerHook[hookID] > 0 {
		s.runningPerHook[hookID]--
	}
	s.processed++
	metrics.IncJobsProcessed(out.Job.hook.Name, out.Success)
	if s.audit != nil {
		go s.audit.Record(out.Job.hook.Name, out.Job.job.ID, out.Success, out.ExitStatus, out.Job.dispatched, now())
	}
	// Status events are not emitted during shutdown: there is no dispatch
	// loop left to serve them and re-entering enqueue after Stop has begun
	// would be observable as a job accepted after shutdown started.
}

func now() time.Time { return time.Now() }
