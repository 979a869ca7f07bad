/*
Package reconciler runs a low-frequency safety-net sweep over running
jobs, re-enqueuing any (provider, task_type) pair that has neither a
recorded result nor anything sitting in its queue lane. It exists for
the gap between the Orchestrator persisting a Job and the Queue
accepting every task for it — a crash in that window, or a restart
against a non-durable queue backend, would otherwise strand a job
forever at less than 100% progress with nothing retrying it.
*/
package reconciler
