package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"roboctl/internal/app"
)

func newArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Build the derived documents of a selection",
		Long: `Builds the robot description, semantic description, kinematics, limits,
planning and controller documents that the selected profile needs.`,
	}
	cmd.AddCommand(newArtifactsBuildCmd())
	cmd.AddCommand(newArtifactsShowCmd())
	return cmd
}

func newArtifactsBuildCmd() *cobra.Command {
	var (
		flags  selectionFlags
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Write every document of the plan into a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(flags.appConfig(cmd, true, false))
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			plan, err := application.Prepare(commandContext(cmd))
			if err != nil {
				return err
			}
			paths, err := app.WriteArtifacts(plan.Artifacts, outDir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "artifacts", "Output directory")
	return cmd
}

// copyToClipboard is a var so tests do not touch the real clipboard.
var copyToClipboard = clipboard.WriteAll

func newArtifactsShowCmd() *cobra.Command {
	var (
		flags   selectionFlags
		copyDoc bool
	)

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print one document, e.g. robot_description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(flags.appConfig(cmd, true, false))
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			plan, err := application.Prepare(commandContext(cmd))
			if err != nil {
				return err
			}
			doc, err := app.ArtifactDocument(plan.Artifacts, args[0])
			if err != nil {
				return err
			}
			if copyDoc {
				if err := copyToClipboard(string(doc)); err != nil {
					return fmt.Errorf("copying %s to the clipboard: %w", args[0], err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s copied to clipboard\n", args[0])
				return nil
			}
			_, err = cmd.OutOrStdout().Write(doc)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&copyDoc, "copy", false, "Copy the document to the clipboard instead of printing it")
	return cmd
}
