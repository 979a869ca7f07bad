/*
Package scheduler reconciles job progress against the Job State Store.

On a fixed tick it looks for providers whose enabled task types have all
reached a terminal result, runs the validation rules engine and report
aggregator over their evidence, and persists the resulting
ProviderReport. Once every provider in a job has a report, the job
transitions to completed and a job.completed event is published.

The scheduler holds no state of its own beyond its tick interval — every
decision is re-derived from the Job State Store each cycle, so a restart
simply resumes reconciliation from whatever is already persisted.
*/
package scheduler
