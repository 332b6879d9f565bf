package capability

import "github.com/maruhq/maru/internal/intent"

// PriorKey returns the reserved argument key under which a completed
// action's excerpt is offered to later actions.
func PriorKey(kind intent.Kind) string {
	return "prior_" + string(kind)
}

// Context accumulates excerpts of completed actions within one request so
// later actions can consume them as implicit arguments. It has value
// semantics: With returns a new Context and never mutates the receiver,
// so one request's accumulation cannot alias another's.
type Context struct {
	values map[string]string
}

// NewContext returns an empty accumulator.
func NewContext() Context {
	return Context{}
}

// With returns a copy of the context carrying kind's excerpt. An empty
// excerpt leaves the context unchanged.
func (c Context) With(kind intent.Kind, excerpt string) Context {
	if excerpt == "" {
		return c
	}
	next := make(map[string]string, len(c.values)+1)
	for k, v := range c.values {
		next[k] = v
	}
	next[PriorKey(kind)] = excerpt
	return Context{values: next}
}

// Excerpt returns the stored excerpt for kind, if any.
func (c Context) Excerpt(kind intent.Kind) (string, bool) {
	v, ok := c.values[PriorKey(kind)]
	return v, ok
}

// Get returns the value stored under a reserved key, if any.
func (c Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Len returns the number of stored excerpts.
func (c Context) Len() int {
	return len(c.values)
}

// MergeArgs returns the intent with the handler's declared context keys
// filled in from the accumulator. Parser-supplied arguments always win;
// a declared key is only set when the intent does not already carry it.
func MergeArgs(in intent.Intent, keys []string, exec Context) intent.Intent {
	if len(keys) == 0 || len(exec.values) == 0 {
		return in
	}

	var merged map[string]string
	for _, key := range keys {
		val, ok := exec.values[key]
		if !ok {
			continue
		}
		if existing, has := in.Arguments[key]; has && existing != "" {
			continue
		}
		if merged == nil {
			merged = make(map[string]string, len(in.Arguments)+1)
			for k, v := range in.Arguments {
				merged[k] = v
			}
		}
		merged[key] = val
	}

	if merged == nil {
		return in
	}
	out := in
	out.Arguments = merged
	return out
}
