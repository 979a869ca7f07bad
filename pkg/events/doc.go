/*
Package events is an in-memory pub/sub broker for job-lifecycle
notifications (job.completed, job.cancelled). Publish is non-blocking: a
slow or absent subscriber drops events rather than stalling the
Scheduler that publishes them.
*/
package events
