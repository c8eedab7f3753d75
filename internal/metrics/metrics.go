// Package metrics exposes Prometheus counters for polling, replay and
// workflow runs.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hyperdash"

// Collector holds the metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	pollCycles           *prometheus.CounterVec
	eventsReplayed       *prometheus.CounterVec
	replaysAbandoned     *prometheus.CounterVec
	reconciliationFaults *prometheus.CounterVec
	transportErrors      *prometheus.CounterVec
	workflowRuns         *prometheus.CounterVec
	stepDuration         *prometheus.HistogramVec
}

// New creates a collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		pollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Poll cycles completed, by resource kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		eventsReplayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_replayed_total",
				Help:      "Events emitted to the view by the replay scheduler",
			},
			[]string{"kind"},
		),
		replaysAbandoned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replays_abandoned_total",
				Help:      "Replays dropped because their activation was superseded",
			},
			[]string{"kind"},
		),
		reconciliationFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliation_faults_total",
				Help:      "Event feeds observed shrinking between polls",
			},
			[]string{"kind"},
		),
		transportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_errors_total",
				Help:      "Failed requests to hypermedia endpoints while polling",
			},
			[]string{"kind", "op"},
		),
		workflowRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_total",
				Help:      "Workflow runs finished, by workflow and result",
			},
			[]string{"workflow", "result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_step_duration_seconds",
				Help:      "Duration of individual workflow steps",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),
	}

	c.registry.MustRegister(
		c.pollCycles,
		c.eventsReplayed,
		c.replaysAbandoned,
		c.reconciliationFaults,
		c.transportErrors,
		c.workflowRuns,
		c.stepDuration,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordCycle counts a finished poll cycle.
func (c *Collector) RecordCycle(kind, outcome string) {
	if c == nil {
		return
	}
	c.pollCycles.WithLabelValues(kind, outcome).Inc()
}

// RecordReplayed counts events emitted by a replay.
func (c *Collector) RecordReplayed(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.eventsReplayed.WithLabelValues(kind).Add(float64(n))
}

// RecordReplayAbandoned counts a replay cut short by deactivation.
func (c *Collector) RecordReplayAbandoned(kind string) {
	if c == nil {
		return
	}
	c.replaysAbandoned.WithLabelValues(kind).Inc()
}

// RecordReconciliationFault counts a shrinking feed.
func (c *Collector) RecordReconciliationFault(kind string) {
	if c == nil {
		return
	}
	c.reconciliationFaults.WithLabelValues(kind).Inc()
}

// RecordTransportError counts a failed poll request. op is "snapshot",
// "events", "commands" or "invoke".
func (c *Collector) RecordTransportError(kind, op string) {
	if c == nil {
		return
	}
	c.transportErrors.WithLabelValues(kind, op).Inc()
}

// RecordWorkflowRun counts a finished workflow run. result is "completed"
// or the fault code that aborted it.
func (c *Collector) RecordWorkflowRun(workflow, result string) {
	if c == nil {
		return
	}
	c.workflowRuns.WithLabelValues(workflow, result).Inc()
}

// ObserveStep records the duration of one workflow step.
func (c *Collector) ObserveStep(step string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}
