package workflow

import (
	"context"
	"errors"

	"github.com/roach88/hyperdash/internal/faults"
)

// ErrNoTraversal is returned by steps that run without a traversal to
// follow or write through.
var ErrNoTraversal = errors.New("no traversal in workflow context")

// ResolveStep follows rel from the current position and requires the
// fetched resource's status to equal precondition exactly.
func ResolveStep(rel, precondition string) Step {
	return Step{
		Name: "resolve",
		Fn: func(ctx context.Context, wc Context) Outcome {
			if wc.Traversal == nil {
				return Fail(ErrNoTraversal)
			}
			rep, err := wc.Traversal.Follow(ctx, rel)
			if err != nil {
				return Fail(err)
			}
			if status := rep.Status(); status != precondition {
				return Fail(faults.NewPrecondition(precondition, status))
			}
			wc.Resource = rep
			return Advance(wc)
		},
	}
}

// MutateStep sets the resolved resource's status to postcondition, PUTs it
// to the traversal's current URL, and requires the server's response to
// carry that status.
func MutateStep(postcondition string) Step {
	return Step{
		Name: "mutate",
		Fn: func(ctx context.Context, wc Context) Outcome {
			if wc.Traversal == nil {
				return Fail(ErrNoTraversal)
			}
			if wc.Resource == nil {
				return Fail(errors.New("no resource resolved before mutation"))
			}
			rep, err := wc.Traversal.Put(ctx, wc.Resource.WithStatus(postcondition))
			if err != nil {
				return Fail(err)
			}
			if status := rep.Status(); status != postcondition {
				return Fail(faults.NewPostcondition(postcondition, status))
			}
			wc.Resource = rep
			return Advance(wc)
		},
	}
}

// Transition is a guarded status change triggered by an inbound
// notification.
type Transition struct {
	// Name identifies the transition in triggers, logs and metrics.
	Name string `mapstructure:"name" json:"name" validate:"required"`

	// TriggerRel is the link relation in the trigger body naming the
	// resource to transition.
	TriggerRel string `mapstructure:"trigger_rel" json:"trigger_rel" validate:"required"`

	// FollowRel is the relation followed from the triggered URL to reach
	// the resource to mutate.
	FollowRel string `mapstructure:"follow_rel" json:"follow_rel" validate:"required"`

	Precondition  string `mapstructure:"precondition" json:"precondition" validate:"required"`
	Postcondition string `mapstructure:"postcondition" json:"postcondition" validate:"required,nefield=Precondition"`
}

// Steps returns the resolve and mutate steps of t.
func (t Transition) Steps() []Step {
	return []Step{
		ResolveStep(t.FollowRel, t.Precondition),
		MutateStep(t.Postcondition),
	}
}

// AccountPending moves a newly created account to pending.
var AccountPending = Transition{
	Name:          "account-pending",
	TriggerRel:    "account",
	FollowRel:     "self",
	Precondition:  "ACCOUNT_CREATED",
	Postcondition: "ACCOUNT_PENDING",
}
