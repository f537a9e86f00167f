package config

import (
	"time"
)

// RoboctlConfig is the top-level configuration structure for roboctl.
type RoboctlConfig struct {
	Robot   string `yaml:"robot,omitempty"`   // Robot model, e.g. "ur5"
	Profile string `yaml:"profile,omitempty"` // "simulation" or "interface"

	// ShareRoot holds one directory per ROS 2 package (an install "share" dir).
	ShareRoot string `yaml:"shareRoot,omitempty"`
	// Packages overrides the directory of single packages.
	Packages map[string]string `yaml:"packages,omitempty"`

	// Choices are default raw values per configuration axis, e.g.
	// cell_layout: stand. Missing axes are prompted for.
	Choices map[string]string `yaml:"choices,omitempty"`

	Launcher   LauncherType `yaml:"launcher,omitempty"`
	UseSimTime *bool        `yaml:"useSimTime,omitempty"`
	Rviz       *bool        `yaml:"rviz,omitempty"`

	Delays    DelayConfig    `yaml:"delays,omitempty"`
	ROS2      ROS2Config     `yaml:"ros2,omitempty"`
	Metrics   ListenerConfig `yaml:"metrics,omitempty"`
	StatusAPI ListenerConfig `yaml:"statusAPI,omitempty"`
	Logging   LoggingConfig  `yaml:"logging,omitempty"`
}

// LauncherType selects how services are started.
type LauncherType string

const (
	LauncherROS2      LauncherType = "ros2"
	LauncherSimulated LauncherType = "simulated"
)

// DelayConfig holds the after-delay edge durations.
type DelayConfig struct {
	MotionPlanning      time.Duration `yaml:"motionPlanning,omitempty"`      // Gate exit to move_group and rviz2
	ExecutionInterfaces time.Duration `yaml:"executionInterfaces,omitempty"` // Gate exit to move and sequence
}

// ROS2Config tunes the external process launcher.
type ROS2Config struct {
	Command     string        `yaml:"command,omitempty"`     // Defaults to "ros2"
	ParamsDir   string        `yaml:"paramsDir,omitempty"`   // Where per-service parameter files go
	StopTimeout time.Duration `yaml:"stopTimeout,omitempty"` // SIGTERM to SIGKILL escalation
	Env         []string      `yaml:"env,omitempty"`         // Extra KEY=VALUE entries
}

// ListenerConfig enables an optional HTTP listener.
type ListenerConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Address string `yaml:"address,omitempty"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// SimTime reports whether services run on simulated time.
func (c RoboctlConfig) SimTime() bool {
	return c.UseSimTime == nil || *c.UseSimTime
}

// RvizEnabled reports whether the interface profile starts rviz2.
func (c RoboctlConfig) RvizEnabled() bool {
	return c.Rviz != nil && *c.Rviz
}
