package app

import (
	"roboctl/internal/config"
	"roboctl/internal/variant"
)

// Config holds the command line settings of one invocation. Values left
// empty fall back to the loaded configuration.
type Config struct {
	// ConfigPath selects a single configuration file instead of the layers.
	ConfigPath string

	// UI mode
	NoTUI bool
	// DryRun forces the simulated launcher.
	DryRun bool

	// Choices are raw axis values given on the command line.
	Choices map[variant.Axis]string
	Profile string
	Rviz    *bool

	LogLevel  string
	LogFormat string

	Version string

	// RoboctlConfig is filled in by NewApplication.
	RoboctlConfig *config.RoboctlConfig
}

// NewConfig creates an invocation config.
func NewConfig(configPath string, noTUI, dryRun bool) *Config {
	return &Config{
		ConfigPath: configPath,
		NoTUI:      noTUI,
		DryRun:     dryRun,
		Choices:    make(map[variant.Axis]string),
	}
}

// rawChoices merges configured axis defaults with command line values.
func (c *Config) rawChoices() map[variant.Axis]string {
	raw := make(map[variant.Axis]string)
	if c.RoboctlConfig != nil {
		for k, v := range c.RoboctlConfig.Choices {
			raw[variant.Axis(k)] = v
		}
	}
	for k, v := range c.Choices {
		if v != "" {
			raw[k] = v
		}
	}
	return raw
}

// applyOverrides copies command line settings onto the loaded configuration.
func (c *Config) applyOverrides(rc *config.RoboctlConfig) {
	if c.Profile != "" {
		rc.Profile = c.Profile
	}
	if c.Rviz != nil {
		v := *c.Rviz
		rc.Rviz = &v
	}
	if c.DryRun {
		rc.Launcher = config.LauncherSimulated
	}
	if c.LogLevel != "" {
		rc.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		rc.Logging.Format = c.LogFormat
	}
}
