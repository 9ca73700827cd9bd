package processor

import (
	"fmt"

	"fisher/internal/hooks"
	"fisher/internal/job"
	"fisher/internal/provider"
)

// Outcome is the result of running the Request Pipeline for one inbound
// request.
type Outcome int

const (
	// OutcomeInvalid means the request was rejected before reaching a
	// worker: no such hook, or no provider binding accepted it.
	OutcomeInvalid Outcome = iota
	// OutcomeIgnored means a provider recognized the request as a no-op
	// (e.g. a ping) and no job was created.
	OutcomeIgnored
	// OutcomeEnqueued means a job was built and handed to the scheduler.
	OutcomeEnqueued
)

// Pipeline classifies an inbound Request against a named hook's provider
// bindings, validates it, and on success builds and enqueues a Job.
type Pipeline struct {
	repo     *hooks.Repository
	registry *provider.Registry
	facade   *Facade
}

// NewPipeline builds a Pipeline over the given hook repository, provider
// registry, and processor facade.
func NewPipeline(repo *hooks.Repository, registry *provider.Registry, facade *Facade) *Pipeline {
	return &Pipeline{repo: repo, registry: registry, facade: facade}
}

// Submit runs the full pipeline for one request against hookName: lookup,
// per-binding classify/validate, job construction, and enqueue.
func (p *Pipeline) Submit(req *job.Request, hookName string) (Outcome, error) {
	h := p.repo.Current().Get(hookName)
	if h == nil {
		return OutcomeInvalid, newError(KindHookNotFound, fmt.Sprintf("no such hook %q", hookName))
	}

	if len(h.Bindings) == 0 {
		// Provider-less hooks validate unconditionally and carry no
		// provider environment.
		j := &job.Job{ID: newJobID(), HookName: h.Name, Type: job.TypeExecuteHook, Request: req, Env: map[string]string{}}
		return p.enqueueJob(h, j)
	}

	for _, binding := range h.Bindings {
		prov, err := p.registry.Get(binding.ProviderName)
		if err != nil {
			continue
		}
		rt := prov.Classify(req, binding.Config)
		switch rt {
		case provider.Ping:
			return OutcomeIgnored, nil
		case provider.ExecuteHook:
			if !prov.Validate(req, binding.Config) {
				continue
			}
			env := prov.Env(req, binding.Config)
			j := &job.Job{
				ID:           newJobID(),
				HookName:     h.Name,
				ProviderName: binding.ProviderName,
				Type:         job.TypeExecuteHook,
				Request:      req,
				Env:          env,
			}
			return p.enqueueJob(h, j)
		default:
			continue
		}
	}
	return OutcomeInvalid, newError(KindRequestInvalid, "no provider accepted the request")
}

func (p *Pipeline) enqueueJob(h *hooks.Hook, j *job.Job) (Outcome, error) {
	if err := p.facade.enqueue(&scheduledJob{job: j, hook: h}); err != nil {
		return OutcomeInvalid, err
	}
	return OutcomeEnqueued, nil
}
