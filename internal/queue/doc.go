// Package queue implements the durable outbound email queue and the
// batch drainer that delivers it.
//
// A job moves through pending -> sending -> sent | failed. The sending
// state is a claim: the drainer takes a job with an atomic
// compare-and-swap before dispatching, so two concurrent drain runs
// never deliver the same job twice. Terminal states are never
// revisited; re-sending a failed email requires a fresh enqueue.
//
// Failures are isolated per job. One transport error marks that job
// failed and the batch moves on; the drain summary reports aggregate
// counts.
package queue
