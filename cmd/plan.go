package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"roboctl/internal/app"
)

func newPlanCmd() *cobra.Command {
	var flags selectionFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the services, their triggers and the required documents",
		Long: `Resolves the choices, builds every required document and prints the
dependency graph of the selected profile without starting anything.
Missing share files are reported exactly as launch would report them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(flags.appConfig(cmd, true, false))
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			plan, err := application.Prepare(commandContext(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			styled := false
			if f, ok := out.(*os.File); ok {
				styled = isatty.IsTerminal(f.Fd())
			}
			fmt.Fprint(out, app.FormatPlan(plan, styled))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
