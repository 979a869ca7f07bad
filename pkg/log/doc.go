/*
Package log wraps zerolog to give every component in the validation
engine structured, leveled logging with a consistent set of context
fields (job_id, provider_id, task_id, source).

Initialize once at startup with Init, then derive component loggers
with WithComponent, WithJobID, WithProviderID, WithTaskID, or
WithSource. The zero-value Logger is usable before Init, at
zerolog's default level.
*/
package log
