// Package workflow runs guarded state transitions over hypermedia resources.
//
// A run is an ordered list of steps. Each step receives the run's Context
// and returns an Outcome: Advance with the context for the next step, or
// Fail with the reason. The first failure aborts the run; nothing is
// retried. Every run owns its Context and Traversal, so concurrent runs for
// different resources share nothing.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
)

const tracerName = "github.com/roach88/hyperdash/internal/workflow"

// Context is the state handed from step to step.
type Context struct {
	// Resource is the representation resolved so far, nil before the first
	// resolve.
	Resource hal.Representation

	// Traversal is the hypermedia cursor the steps follow and mutate through.
	Traversal *hal.Traversal
}

// ErrNoOutcome is the failure reported for a step that returned the zero
// Outcome instead of calling Advance or Fail.
var ErrNoOutcome = errors.New("step returned no outcome")

// Outcome is the result of one step: advance or fail, never both.
// The zero Outcome fails with ErrNoOutcome.
type Outcome struct {
	next     Context
	err      error
	advanced bool
}

// Advance continues the run with next.
func Advance(next Context) Outcome {
	return Outcome{next: next, advanced: true}
}

// Fail aborts the run with err. A nil err still aborts.
func Fail(err error) Outcome {
	if err == nil {
		err = errors.New("step failed without a reason")
	}
	return Outcome{err: err}
}

// Failed reports whether the step aborted the run.
func (o Outcome) Failed() bool {
	return !o.advanced
}

// Err returns the failure reason, or nil.
func (o Outcome) Err() error {
	switch {
	case o.advanced:
		return nil
	case o.err == nil:
		return ErrNoOutcome
	}
	return o.err
}

// Next returns the context for the following step.
func (o Outcome) Next() Context {
	return o.next
}

// StepFunc performs one step.
type StepFunc func(ctx context.Context, wc Context) Outcome

// Step is a named StepFunc.
type Step struct {
	Name string
	Fn   StepFunc
}

// Result is the terminal state of a run.
type Result struct {
	RunID string `json:"run_id"`

	// Resource is the final representation; nil when the run aborted.
	Resource hal.Representation `json:"resource,omitempty"`
}

// StepError identifies the step that aborted a run.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Executor runs step sequences. It holds no per-run state.
type Executor struct {
	ids     RunIDGenerator
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunIDs sets the run ID generator. Defaults to UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) ExecutorOption {
	return func(e *Executor) {
		e.ids = g
	}
}

// WithMetrics records run results and step durations.
func WithMetrics(m *metrics.Collector) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		ids:    UUIDv7Generator{},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes steps in order starting from start. See RunNamed.
func (e *Executor) Run(ctx context.Context, steps []Step, start *hal.Traversal) (Result, error) {
	return e.RunNamed(ctx, "adhoc", steps, start)
}

// RunNamed executes steps in order starting from start, labelling logs,
// spans and metrics with name.
//
// Step i+1 starts only after step i advanced. On the first failure the
// remaining steps are skipped and the returned Result carries only the run
// ID. On success it carries the context's final resource.
func (e *Executor) RunNamed(ctx context.Context, name string, steps []Step, start *hal.Traversal) (Result, error) {
	runID := e.ids.Generate()
	result := Result{RunID: runID}
	log := slog.With("workflow", name, "run_id", runID)

	ctx, span := e.tracer.Start(ctx, "workflow."+name, trace.WithAttributes(
		attribute.String("workflow.name", name),
		attribute.String("workflow.run_id", runID),
	))
	defer span.End()

	wc := Context{Traversal: start}
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return result, e.abort(log, span, name, &StepError{Step: step.Name, Index: i, Err: err})
		}

		stepCtx, stepSpan := e.tracer.Start(ctx, "workflow.step."+step.Name)
		began := time.Now()
		out := step.Fn(stepCtx, wc)
		e.metrics.ObserveStep(step.Name, time.Since(began))
		if out.Failed() {
			stepSpan.SetStatus(codes.Error, out.Err().Error())
		}
		stepSpan.End()

		if out.Failed() {
			return result, e.abort(log, span, name, &StepError{Step: step.Name, Index: i, Err: out.Err()})
		}
		wc = out.Next()
		log.Debug("step advanced", "step", step.Name, "status", wc.Resource.Status())
	}

	result.Resource = wc.Resource
	e.metrics.RecordWorkflowRun(name, "completed")
	log.Info("workflow completed", "status", wc.Resource.Status())
	return result, nil
}

func (e *Executor) abort(log *slog.Logger, span trace.Span, name string, err *StepError) error {
	label := string(faults.CodeOf(err))
	switch {
	case label != "":
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		label = "canceled"
	default:
		label = "error"
	}
	e.metrics.RecordWorkflowRun(name, label)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("workflow aborted", "step", err.Step, "result", label, "error", err.Err)
	return err
}
