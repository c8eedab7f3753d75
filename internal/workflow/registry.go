package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/hyperdash/internal/hal"
)

var (
	// ErrUnknownWorkflow is returned when a trigger names no registered
	// transition.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrInvalidTrigger is returned when a trigger body does not carry the
	// transition's link relation.
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// ParseTrigger extracts the href of rel from a HAL trigger body of the form
// {"_links": {"<rel>": {"href": "..."}}}.
func ParseTrigger(body []byte, rel string) (string, error) {
	rep, err := hal.DecodeBytes(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	href, ok := rep.Href(rel)
	if !ok || href == "" {
		return "", fmt.Errorf("%w: link relation %q missing", ErrInvalidTrigger, rel)
	}
	return href, nil
}

// Registry maps workflow names to transitions and runs them on trigger.
//
// Thread-safety: Registry is immutable after NewRegistry and safe for
// concurrent use. Each Trigger starts its own Traversal.
type Registry struct {
	client      hal.Client
	exec        *Executor
	transitions map[string]Transition
}

// NewRegistry creates a registry. Names must be unique.
func NewRegistry(client hal.Client, exec *Executor, transitions ...Transition) (*Registry, error) {
	r := &Registry{
		client:      client,
		exec:        exec,
		transitions: make(map[string]Transition, len(transitions)),
	}
	for _, t := range transitions {
		if t.Name == "" {
			return nil, errors.New("workflow name is empty")
		}
		if _, dup := r.transitions[t.Name]; dup {
			return nil, fmt.Errorf("duplicate workflow %q", t.Name)
		}
		r.transitions[t.Name] = t
	}
	return r, nil
}

// Names returns the registered workflow names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.transitions))
	for name := range r.transitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the transition registered under name.
func (r *Registry) Get(name string) (Transition, bool) {
	t, ok := r.transitions[name]
	return t, ok
}

// Trigger parses body for the transition's trigger relation and runs the
// transition from the linked resource.
func (r *Registry) Trigger(ctx context.Context, name string, body []byte) (Result, error) {
	t, ok := r.transitions[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	href, err := ParseTrigger(body, t.TriggerRel)
	if err != nil {
		return Result{}, err
	}
	return r.Start(ctx, name, href)
}

// Start runs the named transition from url.
func (r *Registry) Start(ctx context.Context, name, url string) (Result, error) {
	t, ok := r.transitions[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	return r.exec.RunNamed(ctx, t.Name, t.Steps(), hal.From(r.client, url))
}
