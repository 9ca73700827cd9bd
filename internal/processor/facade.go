package processor

import (
	"errors"
	"time"

	"fisher/internal/hooks"
	"fisher/internal/job"
	"fisher/internal/logging"
)

// HookCollector recollects the hook set from its external source (typically
// a filesystem walk) for use during reload. It returns the same kind of
// snapshot the initial process startup built.
type HookCollector func() (*hooks.Snapshot, error)

// Facade is the only surface the HTTP front-end talks to. It forwards
// enqueue/health/lock/unlock to the Scheduler and coordinates reload's
// two-lock interlock with whatever front-end lock the caller supplies.
type Facade struct {
	repo      *hooks.Repository
	scheduler *Scheduler
	collect   HookCollector
	log       *logging.Logger
}

// NewFacade builds a Facade over an already-running Scheduler.
func NewFacade(repo *hooks.Repository, scheduler *Scheduler, collect HookCollector, log *logging.Logger) *Facade {
	return &Facade{repo: repo, scheduler: scheduler, collect: collect, log: log}
}

// errStopped is what send reports for any Facade call made after Stop has
// completed; enqueue returns it to its caller, Health turns it into zero
// counters, and Lock/Unlock/Cleanup ignore it.
// It is a plain sentinel rather than a Kind-carrying *Error because "the
// scheduler has already stopped" is not one of the error kinds §7 enumerates
// for a live request — by the time it fires there is no scheduler left to
// misaccount.
var errStopped = errors.New("processor: scheduler is stopped")

// send delivers c on the command channel and waits for its reply, returning
// errStopped instead of blocking forever if the scheduler goroutine has
// already exited (run() closes scheduler.closed as it returns, right after
// handle has processed cmdStop). Without this guard, any Facade call arriving
// after Stop would deadlock the caller on a channel nothing reads anymore.
func (f *Facade) send(c command) (any, error) {
	select {
	case f.scheduler.cmd <- c:
	case <-f.scheduler.closed:
		return nil, errStopped
	}
	select {
	case v := <-c.reply:
		return v, nil
	case <-f.scheduler.closed:
		return nil, errStopped
	}
}

// enqueue submits a scheduled job built by the Request Pipeline.
func (f *Facade) enqueue(sj *scheduledJob) error {
	v, err := f.send(command{kind: cmdEnqueue, job: sj, reply: make(chan any, 1)})
	if err != nil {
		return err
	}
	if err, ok := v.(error); ok && err != nil {
		return err
	}
	return nil
}

// Fatal surfaces the scheduler's internal-invariant-violation channel to the
// HTTP front-end's caller (main), since the scheduler goroutine itself must
// not call os.Exit.
func (f *Facade) Fatal() <-chan error {
	return f.scheduler.Fatal()
}

// Health returns the current scheduler health counters. A stopped scheduler
// reports zero counters.
func (f *Facade) Health() Health {
	v, err := f.send(command{kind: cmdHealth, reply: make(chan any, 1)})
	if err != nil {
		return Health{}
	}
	return v.(Health)
}

// Lock suspends dispatch; queued jobs accumulate but nothing new starts.
func (f *Facade) Lock() {
	f.send(command{kind: cmdLock, reply: make(chan any, 1)})
}

// Unlock resumes dispatch.
func (f *Facade) Unlock() {
	f.send(command{kind: cmdUnlock, reply: make(chan any, 1)})
}

// Cleanup drops queued jobs whose hook no longer exists in the current
// snapshot. Callers must have already called Lock.
func (f *Facade) Cleanup() {
	f.send(command{kind: cmdCleanup, reply: make(chan any, 1)})
}

// Stop locks, drains running jobs, stops every worker, and returns. It is
// idempotent only in the sense that the underlying scheduler goroutine
// exits after the first call; a second call would block forever sending to
// a dead goroutine's command channel, so callers must call it exactly once.
func (f *Facade) Stop(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		reply := make(chan any, 1)
		f.scheduler.cmd <- command{kind: cmdStop, reply: reply}
		<-reply
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		// Grace expired with jobs still running: send termination signals
		// to their child processes, then wait for the stop command (already
		// in flight) to observe the resulting completions and join workers.
		for _, w := range f.scheduler.Workers() {
			w.Terminate()
		}
		<-done
	}
}

// FrontEndLock is the HTTP front-end's half of the reload interlock: while
// held for writing (by Reload), new /hook/* requests park on RLock until
// released. Declared here so Facade.Reload can accept it without the
// processor package depending on net/http.
type FrontEndLock interface {
	Lock()
	Unlock()
}

// Reload performs the two-lock interlock: front-end lock first and released
// last, so a request admitted mid-reload observes the new hook set rather
// than landing in a snapshot about to be cleaned up.
func (f *Facade) Reload(frontEnd FrontEndLock) error {
	frontEnd.Lock()
	defer frontEnd.Unlock()

	f.Lock()
	defer f.Unlock()

	snapshot, err := f.collect()
	if err != nil {
		if f.log != nil {
			f.log.LogReload(0, err)
		}
		return err
	}
	f.repo.Swap(snapshot)
	f.Cleanup()
	if f.log != nil {
		f.log.LogReload(snapshot.Len(), nil)
	}
	return nil
}

// BuildStatusJob is the statusHandler passed to NewScheduler; it lives here
// (rather than in scheduler.go) because constructing a job.Job from a Hook
// completion is a pipeline-shaped concern.
func BuildStatusJob(observer *hooks.Hook, sourceHookName, event string, sourceJob *job.Job) *job.Job {
	return &job.Job{
		ID:            newJobID(),
		HookName:      observer.Name,
		Type:          job.TypeExecuteHook,
		Request:       &job.Request{},
		IsStatusEvent: true,
		Env: map[string]string{
			"FISHER_STATUS_EVENT": event,
			"FISHER_STATUS_HOOK":  sourceHookName,
			"FISHER_STATUS_JOB":   sourceJob.ID,
		},
	}
}
