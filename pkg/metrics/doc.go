/*
Package metrics provides Prometheus metrics collection and exposition for the
provider validation engine.

The metrics package defines and registers every engine metric using the
Prometheus client library, giving observability into job throughput, queue
depth, worker activity, retry behavior, and reconciliation health. Metrics
are exposed via an HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (queue depth)        │          │
	│  │  Counter: Monotonic increases (jobs)        │          │
	│  │  Histogram: Distributions (task latency)    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Jobs: Status counts, progress              │          │
	│  │  Queue: Depth per task type                 │          │
	│  │  Worker: Task duration, failures            │          │
	│  │  Retry: Attempts, exhaustion                │          │
	│  │  Scheduler: Cycle duration                  │          │
	│  │  Reconciler: Cycle duration, count          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Thread-safe for concurrent updates

Collector:
  - Periodic sampler (15s) for gauge metrics that have no natural update
    site: job counts by status, queue depth per task type
  - Accepts small local interfaces (jobLister, depthSource) rather than
    importing pkg/jobstore or pkg/queue directly, to avoid a cycle

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram

# Usage

	import "github.com/cuemby/provenance/pkg/metrics"

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.TaskDuration)

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/jobstore: Collector samples job counts by status
  - pkg/queue: Collector samples per-task-type queue depth
  - pkg/worker: Reports task execution duration and outcome
  - pkg/scheduler: Records scheduler cycle duration
  - pkg/reconciler: Tracks reconciliation cycle duration and count
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init()
  - MustRegister panics on duplicate registration

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels (task type, status)
  - Never label on job ID or provider ID

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
