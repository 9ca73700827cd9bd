// Package provider defines the provider contract: a named bundle of pure,
// stateless functions that turn an HTTP request into a classified,
// validated, environment-enriched job. Providers are registered once at
// process start and looked up by name from hook configuration.
package provider

import "fisher/internal/job"

// RequestType classifies an inbound request against a single provider binding.
type RequestType int

const (
	// Invalid means this provider did not recognize the request shape.
	Invalid RequestType = iota
	// Ping means the provider recognized a connectivity-check request that
	// should not execute the hook script.
	Ping
	// ExecuteHook means the provider recognized a request that should run
	// the hook script, pending validate().
	ExecuteHook
)

func (t RequestType) String() string {
	switch t {
	case Ping:
		return "ping"
	case ExecuteHook:
		return "execute_hook"
	default:
		return "invalid"
	}
}

// Provider bundles the four pure functions a provider contributes. All four
// must be safe for concurrent use by multiple goroutines; none may retain or
// mutate the Request.
type Provider struct {
	// Name identifies the provider for hook header bindings and registry lookup.
	Name string

	// CheckConfig validates a hook's `## <Name>: <config>` payload at load
	// time, before the hook is admitted into a snapshot.
	CheckConfig func(config string) error

	// Classify inspects a request cheaply (headers, a few bytes of body)
	// and returns how the provider views it. Called for every inbound
	// request bound to this provider.
	Classify func(req *job.Request, config string) RequestType

	// Validate performs the (possibly expensive) authenticity check, e.g.
	// an HMAC comparison. Only called when Classify returned ExecuteHook.
	Validate func(req *job.Request, config string) bool

	// Env produces provider-specific environment variables for a validated
	// request, e.g. delivery id, event name.
	Env func(req *job.Request, config string) map[string]string
}
