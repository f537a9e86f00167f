package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"k8s.io/utils/clock"

	"roboctl/internal/config"
	"roboctl/internal/prompt"
	"roboctl/internal/variant"
	"roboctl/pkg/logging"
)

// ChoiceResolver turns raw axis values into a selection, asking the operator
// when needed.
type ChoiceResolver interface {
	Resolve(ctx context.Context, raw map[variant.Axis]string) (variant.Selection, error)
}

// Application is the main application structure that bootstraps and runs roboctl
type Application struct {
	config   *Config
	rc       config.RoboctlConfig
	resolver ChoiceResolver
	out      io.Writer
	// clock drives the simulated launcher and the orchestrator timers.
	clock clock.Clock
}

// NewApplication loads the configuration, applies the command line settings
// and initializes logging.
func NewApplication(cfg *Config) (*Application, error) {
	rc, err := config.LoadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load roboctl configuration: %w", err)
	}
	cfg.applyOverrides(&rc)
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.InitForCLI(logging.ParseLevel(rc.Logging.Level), logging.Format(rc.Logging.Format), os.Stderr)
	if cfg.ConfigPath != "" {
		logging.Info("Bootstrap", "Loaded configuration from %s", cfg.ConfigPath)
	} else {
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}

	return newApplication(cfg, rc), nil
}

func newApplication(cfg *Config, rc config.RoboctlConfig) *Application {
	cfg.RoboctlConfig = &rc
	return &Application{
		config:   cfg,
		rc:       rc,
		resolver: prompt.NewPrompter(),
		out:      os.Stdout,
		clock:    clock.RealClock{},
	}
}

// SetOutput redirects the plain output of the application.
func (a *Application) SetOutput(w io.Writer) {
	a.out = w
}

// RoboctlConfig returns the effective configuration.
func (a *Application) RoboctlConfig() config.RoboctlConfig {
	return a.rc
}
