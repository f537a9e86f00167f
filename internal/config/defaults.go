package config

import (
	"time"
)

// GetDefaultConfig returns the built-in configuration. No axis choices are
// preset, so an interactive launch prompts for every axis.
func GetDefaultConfig() RoboctlConfig {
	simTime := true
	rviz := false
	return RoboctlConfig{
		Robot:      "ur5",
		Profile:    "simulation",
		ShareRoot:  "/opt/ros/humble/share",
		Packages:   map[string]string{},
		Choices:    map[string]string{},
		Launcher:   LauncherROS2,
		UseSimTime: &simTime,
		Rviz:       &rviz,
		Delays: DelayConfig{
			MotionPlanning:      2 * time.Second,
			ExecutionInterfaces: 5 * time.Second,
		},
		ROS2: ROS2Config{
			Command:     "ros2",
			StopTimeout: 10 * time.Second,
		},
		Metrics: ListenerConfig{
			Address: "localhost:9464",
		},
		StatusAPI: ListenerConfig{
			Address: "localhost:8091",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
