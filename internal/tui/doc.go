// Package tui provides the live status view of an orchestration run.
//
// The view is a Bubble Tea program that shows the per-service status table
// and the overall run state while services are brought up, together with the
// activity log produced through pkg/logging.
//
// # Data Sources
//
// The model never touches orchestrator internals. It reads:
//
//   - StateStore change notifications, which trigger a refresh of the table
//   - the run state and table from the Run, polled on every spinner tick
//   - log entries from the channel returned by logging.InitForTUI
//   - the Done channel of the run, which marks the end of the run
//
// # Keys
//
//   - q / Ctrl+C: cancel the run (services are stopped in reverse
//     dependency order); pressed again, or once the run has finished, quit
//   - l: toggle the activity log
//   - y: copy the status table to the clipboard
//
// # Usage
//
//	logCh := logging.InitForTUI(logging.LevelInfo)
//	defer logging.CloseTUIChannel()
//	if err := tui.RunProgram(ctx, run, run.Store(), logCh); err != nil {
//		return err
//	}
package tui
