// Package services defines the launch contract between the orchestrator and
// the services it brings up, and provides two launchers.
//
// # Core Concepts
//
// Launcher: starts one service from its descriptor. A launch call receives the
// artifacts the service needs, the scalar parameters identifying the active
// variant and the simulated-time flag. Launch returns as soon as the service
// has been started; it never waits for readiness.
//
// Process: a started service. Every process reports exactly one exit through
// Wait, whether it terminates on its own, fails, or is stopped.
//
// # Launchers
//
//   - ProcessLauncher runs each service as an external ROS 2 process
//     ("ros2 run" for nodes, "ros2 launch" for included descriptions). Artifact
//     and scalar parameters are written to a per-service parameters file.
//   - SimulatedLauncher runs in-process tasks driven by a clock. Spawner style
//     services exit shortly after starting, everything else runs until it is
//     stopped. It backs dry runs and the orchestrator tests.
//
// # Argument Substitution
//
// Descriptor arguments may reference "$(artifact NAME)", replaced by the host
// path or document of an artifact, and "$(share PACKAGE)", replaced by the
// share directory of a package.
package services
