// Package config provides configuration management for roboctl.
//
// Configuration is loaded from YAML files and merged in a fixed order, with
// later sources overriding earlier ones.
//
// # Configuration Layers
//
//  1. Default Configuration (embedded in binary)
//     - ur5 robot, simulation profile, ros2 launcher, simulated time
//     - Motion planning 2s and execution interfaces 5s after the gate service
//
//  2. User Configuration (~/.config/roboctl/config.yaml)
//     - Personal settings such as the ROS 2 share directory
//
//  3. Project Configuration (./.roboctl/config.yaml)
//     - Cell specific settings shared through version control
//
// An explicit file given with --config replaces layers 2 and 3.
//
// # Configuration Structure
//
//	robot: ur5
//	profile: interface          # or simulation
//	shareRoot: /opt/ros/humble/share
//	packages:
//	  ros2srrc_ur5_gazebo: /home/me/ws/install/ros2srrc_ur5_gazebo/share/ros2srrc_ur5_gazebo
//	choices:
//	  cell_layout: stand        # alone, stand or lab (or 1, 2, 3)
//	  end_effector: gripper     # none or gripper (or 1, 2)
//	launcher: ros2              # or simulated
//	useSimTime: true
//	rviz: true
//	delays:
//	  motionPlanning: 2s
//	  executionInterfaces: 5s
//	ros2:
//	  stopTimeout: 10s
//	metrics:
//	  enabled: true
//	  address: localhost:9464
//	statusAPI:
//	  enabled: true
//	  address: localhost:8091
//	logging:
//	  level: debug
//	  format: json
//
// # Axis Choices
//
// Choices are defaults only. They pass through the variant resolver like
// operator input, so an invalid configured value is reported, never replaced.
//
// # Usage Example
//
//	cfg, err := config.LoadConfig("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Profile, cfg.SimTime())
package config
