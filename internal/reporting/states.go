package reporting

// ServiceState is the lifecycle state of one service within a run.
type ServiceState string

const (
	StateNotStarted ServiceState = "NotStarted"
	StateStarting   ServiceState = "Starting"
	StateRunning    ServiceState = "Running"
	StateExited     ServiceState = "Exited"
)

// RunState is the overall state of an orchestration run.
type RunState string

const (
	RunBuilding  RunState = "Building"
	RunLaunching RunState = "Launching"
	RunSteady    RunState = "Steady"
	RunDegraded  RunState = "Degraded"
	RunAborted   RunState = "Aborted"
)

// Settled reports whether the run state is one of the terminal-ish states.
func (s RunState) Settled() bool {
	return s == RunSteady || s == RunDegraded || s == RunAborted
}
