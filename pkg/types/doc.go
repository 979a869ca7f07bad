/*
Package types defines the data model shared across the validation
orchestration engine: provider submissions, jobs, worker tasks and their
results, rule-level validation results, and the fused provider report.

All enumerations use typed string constants with fixed spellings
(JobStatus, TaskType, ValidationStatus, ValidationSource) rather than
bare strings, so a caller cannot construct an unrecognized state by
accident.

# State machine

A Job moves:

	pending -> running -> {completed, failed}
	        -> cancelled (from pending or running)

Terminal statuses (completed, failed, cancelled) are never mutated
further; see JobStatus.IsTerminal.

A (provider, field) moves:

	unknown -> (evidence arrives) -> {valid, warning, invalid}

and stays there; nothing in this package reopens a terminal field
verdict.

# Integration points

  - pkg/jobstore persists these types to BoltDB.
  - pkg/queue and pkg/worker move WorkerTask/WorkerTaskResult.
  - pkg/rules produces ValidationResult; pkg/aggregator fuses them into
    FieldSummary and ProviderReport.
  - pkg/orchestrator creates and cancels Jobs; pkg/scheduler updates
    their progress counts and terminal status.
*/
package types
