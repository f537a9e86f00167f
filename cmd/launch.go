package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"roboctl/internal/app"
)

func newLaunchCmd() *cobra.Command {
	var (
		flags  selectionFlags
		noTUI  bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Resolve the cell configuration and start every service",
		Long: `Resolves the cell layout and end-effector, builds the derived documents and
starts the services of the selected profile in dependency order.

Choices come from the flags, then from the configuration file. Missing or
invalid values are asked for interactively; without a terminal the command
fails instead of guessing a default.

It can run in two modes:

1. Interactive TUI Mode (default):
   - Shows the per-service status table and the run state while services start.
   - q or Ctrl+C cancels the run and stops the services in reverse dependency order.

2. Non-TUI / CLI Mode (using --no-tui flag):
   - Logs every service state change and prints the status table once the run settles.
   - Runs until interrupted (Ctrl+C).

With --dry-run the services are simulated in-process instead of started
through ros2, which exercises the whole launch sequence without ROS 2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(flags.appConfig(cmd, noTUI, dryRun))
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Launch(commandContext(cmd))
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable the status view and log state changes instead")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate the services instead of starting them")
	return cmd
}
