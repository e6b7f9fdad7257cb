// Package services sits between the transports and the operations package.
//
// PipelineService turns a RunRequest into a RunSpec using the pipeline
// configuration, then executes it:
//
//   - Run executes one run synchronously; the CLI uses it.
//   - RunBatch executes independent runs with a bounded number in flight.
//   - Submit queues a run in the background and records it in a RunStore,
//     which the HTTP handlers query.
//
// HealthService answers the liveness and readiness probes.
package services
