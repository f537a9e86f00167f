// Package orchestrator brings up a descriptor set in dependency order and
// tracks the run until it settles.
//
// # Architecture
//
// A Run owns one descriptor set, the artifacts built for it, a Launcher, an
// event bus and a state store. All state transitions happen on a single
// control loop goroutine. The loop waits for one of four things:
//
//   - a launch call returning (success or ServiceStartError)
//   - a launch event from the bus (Running or Exited)
//   - an after-delay timer expiring
//   - cancellation by the operator or the parent context
//
// Launch calls and process supervision run on their own goroutines and report
// back through channels or the bus, so starting a service never blocks the loop.
//
// # Dependency Edges
//
// Each descriptor lists edges on predecessor services:
//
//  1. immediate edges never hold a service back
//  2. on-exit edges release the dependent when the predecessor exits, whatever its status
//  3. after-delay edges start a timer when the predecessor exits and release the
//     dependent when it fires
//
// A service with several gating edges starts once all of them are released.
// Services released by the same event are started in descriptor order.
//
// # Run States
//
// A run moves from Building to Launching when Start subscribes to the bus and
// issues the root services. It becomes Steady once every leaf service has
// reached Running. A launch error marks the run Degraded; services gated on the
// failed service's exit are still started. Cancel before the run settles ends
// it as Aborted: the loop unsubscribes from the bus and stops the Running and
// Starting services in reverse dependency order.
//
// # Usage Example
//
//	run, err := orchestrator.New(orchestrator.Config{
//	    Descriptors: set,
//	    Artifacts:   artifacts,
//	    Launcher:    &services.ProcessLauncher{},
//	})
//	if err != nil {
//	    return err
//	}
//	if err := run.Start(ctx); err != nil {
//	    return err
//	}
//	state, err := run.WaitSettled(ctx)
package orchestrator
