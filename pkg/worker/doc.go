/*
Package worker runs the worker pool: a fixed number of goroutines per
task type, each looping reserve -> rate-limit -> connector call (through
the retry controller) -> persist -> ack/nack against the queue.

Pool concurrency defaults to DefaultConcurrency but can be overridden per
task type. A worker goroutine that fails to acquire the rate limiter
nacks its reservation immediately rather than blocking the slot past the
task's own timeout; a connector error goes through the retry controller's
classification before the result (success, miss, or failure) is persisted
and the reservation acked.

Workers hold no state between tasks — restart simply resumes pulling
from whichever lanes still have depth.
*/
package worker
