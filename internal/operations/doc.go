// Package operations runs the ETA pipeline as a sequence of steps.
//
// A run is described by a RunSpec: one source file, the output layout and the
// stage options. The Manager orders the registered steps by their
// dependencies, executes them one at a time under a per-step timeout and
// reports every transition to the StatusBroadcaster, which forwards it to the
// websocket hub. A failed step marks its dependents skipped. When the run
// ends, successful or not, a RunManifest with BLAKE2b digests of every
// committed output is written next to the artifacts.
//
// Core components:
//
// Manager: executes steps in dependency order and owns run bookkeeping.
//
// Step: one unit of work. The four stage steps stream a CSV file through
// dataprocessing and commit their output atomically. The summarize step
// builds the category summary and the workbook from the stage 4 file.
//
// Registry: stores steps and computes their execution order.
//
// OperationState: the runtime state of a run and each of its steps.
//
// Example usage:
//
//	manager := operations.NewManager(hub, nil, operations.NewConfig())
//	for _, step := range operations.PipelineSteps(files.NewManager(outputDir)) {
//		manager.RegisterStage(step)
//	}
//
//	state := operations.NewOperationState(runID, spec)
//	resp, err := manager.Execute(ctx, state)
package operations
