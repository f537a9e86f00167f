package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"roboctl/internal/app"
	"roboctl/internal/variant"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roboctl",
	Short: "Bring up the UR5 robot cell services in dependency order",
	Long: `roboctl resolves the robot cell configuration (cell layout and end-effector),
derives the robot description and motion planning documents for it, and starts
the ROS 2 services of the cell in the order their launch dependencies require.

Services that depend on a one-shot predecessor (entity spawning, controller
spawners) start when that predecessor exits, optionally after a fixed delay.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid choices, missing share files)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "roboctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: layered ~/.config/roboctl/config.yaml and .roboctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format in CLI mode: text or json")

	rootCmd.AddCommand(newLaunchCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newArtifactsCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// selectionFlags are shared by every command that derives a plan.
type selectionFlags struct {
	cellLayout  string
	endEffector string
	profile     string
	rviz        bool
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.cellLayout, "cell-layout", "", "Cell layout: alone, stand or lab (or 1-3)")
	cmd.Flags().StringVar(&f.endEffector, "end-effector", "", "End-effector: none or gripper (or 1-2)")
	cmd.Flags().StringVar(&f.profile, "profile", "", "Launch profile: simulation or interface")
	cmd.Flags().BoolVar(&f.rviz, "rviz", false, "Start rviz2 with the interface profile")
}

// appConfig builds the application config for cmd from the global and
// selection flags.
func (f *selectionFlags) appConfig(cmd *cobra.Command, noTUI, dryRun bool) *app.Config {
	cfg := app.NewConfig(configPath, noTUI, dryRun)
	cfg.Choices[variant.AxisCellLayout] = f.cellLayout
	cfg.Choices[variant.AxisEndEffector] = f.endEffector
	cfg.Profile = f.profile
	if cmd.Flags().Changed("rviz") {
		rviz := f.rviz
		cfg.Rviz = &rviz
	}
	cfg.LogLevel = logLevel
	cfg.LogFormat = logFormat
	cfg.Version = rootCmd.Version
	return cfg
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
