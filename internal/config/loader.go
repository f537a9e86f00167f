package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/roboctl"
	projectConfigDir = ".roboctl"
	configFileName   = "config.yaml"
)

// LoadConfig layers the default, user and project configuration. When
// explicitPath is set, that file replaces the user and project layers.
func LoadConfig(explicitPath string) (RoboctlConfig, error) {
	config := GetDefaultConfig()

	if explicitPath != "" {
		fileConfig, err := loadConfigFromFile(explicitPath)
		if err != nil {
			return RoboctlConfig{}, fmt.Errorf("error loading config from %s: %w", explicitPath, err)
		}
		config = mergeConfigs(config, fileConfig)
		return config, config.Validate()
	}

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
		userConfig, err := loadConfigFromFile(userConfigPath)
		if err != nil {
			return RoboctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
		}
		config = mergeConfigs(config, userConfig)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
		projectConfig, err := loadConfigFromFile(projectConfigPath)
		if err != nil {
			return RoboctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
		config = mergeConfigs(config, projectConfig)
	}

	return config, config.Validate()
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a RoboctlConfig from a YAML file. Unknown keys are
// rejected so a misspelt setting is not silently ignored.
func loadConfigFromFile(filePath string) (RoboctlConfig, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return RoboctlConfig{}, err
	}
	defer f.Close()

	var config RoboctlConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return RoboctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Set values in
// the overlay win; maps are merged key by key.
func mergeConfigs(base, overlay RoboctlConfig) RoboctlConfig {
	merged := base

	if overlay.Robot != "" {
		merged.Robot = overlay.Robot
	}
	if overlay.Profile != "" {
		merged.Profile = overlay.Profile
	}
	if overlay.ShareRoot != "" {
		merged.ShareRoot = overlay.ShareRoot
	}
	merged.Packages = mergeMaps(base.Packages, overlay.Packages)
	merged.Choices = mergeMaps(base.Choices, overlay.Choices)
	if overlay.Launcher != "" {
		merged.Launcher = overlay.Launcher
	}
	if overlay.UseSimTime != nil {
		merged.UseSimTime = overlay.UseSimTime
	}
	if overlay.Rviz != nil {
		merged.Rviz = overlay.Rviz
	}

	if overlay.Delays.MotionPlanning != 0 {
		merged.Delays.MotionPlanning = overlay.Delays.MotionPlanning
	}
	if overlay.Delays.ExecutionInterfaces != 0 {
		merged.Delays.ExecutionInterfaces = overlay.Delays.ExecutionInterfaces
	}

	if overlay.ROS2.Command != "" {
		merged.ROS2.Command = overlay.ROS2.Command
	}
	if overlay.ROS2.ParamsDir != "" {
		merged.ROS2.ParamsDir = overlay.ROS2.ParamsDir
	}
	if overlay.ROS2.StopTimeout != 0 {
		merged.ROS2.StopTimeout = overlay.ROS2.StopTimeout
	}
	if len(overlay.ROS2.Env) > 0 {
		merged.ROS2.Env = overlay.ROS2.Env
	}

	merged.Metrics = mergeListener(base.Metrics, overlay.Metrics)
	merged.StatusAPI = mergeListener(base.StatusAPI, overlay.StatusAPI)

	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}
	if overlay.Logging.Format != "" {
		merged.Logging.Format = overlay.Logging.Format
	}

	return merged
}

func mergeMaps(base, overlay map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func mergeListener(base, overlay ListenerConfig) ListenerConfig {
	merged := base
	if overlay.Enabled {
		merged.Enabled = true
	}
	if overlay.Address != "" {
		merged.Address = overlay.Address
	}
	return merged
}

// Validate checks the values that have a fixed set of choices. Axis choices
// are left to the variant resolver.
func (c RoboctlConfig) Validate() error {
	switch c.Launcher {
	case LauncherROS2, LauncherSimulated:
	default:
		return fmt.Errorf("invalid launcher %q (allowed: %s, %s)", c.Launcher, LauncherROS2, LauncherSimulated)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q (allowed: text, json)", c.Logging.Format)
	}
	if c.Delays.MotionPlanning < 0 || c.Delays.ExecutionInterfaces < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
