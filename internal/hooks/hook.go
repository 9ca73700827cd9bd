// Package hooks owns the Hook type, the immutable-snapshot Hook Repository,
// and filesystem discovery of hook scripts via their `##`-prefixed header
// comments.
package hooks

// Binding pairs a provider name with the raw config string read from a
// hook's `## <Provider-Name>: <config>` header line. The config is opaque to
// the repository; only the named provider's CheckConfig/Validate/Env
// functions interpret it.
type Binding struct {
	ProviderName string
	Config       string
}

// StatusSubscription declares that a hook should be invoked as a synthesized
// status job when one of Events happens to any hook named in Hooks.
type StatusSubscription struct {
	Events []string
	Hooks  []string
}

// Hook is a named executable script plus its provider bindings and flags.
// Once constructed and placed in a Snapshot, a Hook is never mutated; a new
// Hook value replaces it wholesale on the next reload.
type Hook struct {
	// ID is a stable identifier assigned at registration (collection time).
	ID string
	// Name is the human-facing hook name, also the HTTP path segment
	// (POST /hook/<name>) and the key used for provider and status bindings.
	Name string
	// ScriptPath is the absolute path to the executable hook script.
	ScriptPath string
	// Bindings lists the provider bindings in header order. The request
	// pipeline tries them in order and stops at the first that validates.
	Bindings []Binding
	// Parallel controls whether multiple jobs for this hook may run
	// concurrently. Default false: the hook serializes.
	Parallel bool
	// Status is the optional status-event subscription. Nil means this hook
	// does not observe other hooks' completions.
	Status *StatusSubscription
}

// MatchesEvent reports whether this hook's status subscription covers the
// given source hook name and event kind.
func (h *Hook) MatchesEvent(sourceHookName, event string) bool {
	if h == nil || h.Status == nil {
		return false
	}
	if !contains(h.Status.Hooks, sourceHookName) {
		return false
	}
	return contains(h.Status.Events, event)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
