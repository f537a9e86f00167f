package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"roboctl/internal/config"
	"roboctl/internal/monitor"
	"roboctl/internal/orchestrator"
	"roboctl/internal/reporting"
	"roboctl/internal/services"
	"roboctl/internal/statusapi"
	"roboctl/internal/tui"
	"roboctl/internal/variant"
	"roboctl/pkg/logging"
)

// ErrRunDegraded is returned by Launch when at least one service failed to start.
var ErrRunDegraded = errors.New("run degraded")

// newLauncher creates the launcher selected by the configuration. The
// returned cleanup removes temporary parameter files.
func (a *Application) newLauncher(runID string) (services.Launcher, func(), error) {
	if a.rc.Launcher == config.LauncherSimulated {
		logging.Info("Bootstrap", "Using the simulated launcher")
		return services.NewSimulatedLauncher(a.clock, nil), func() {}, nil
	}

	cleanup := func() {}
	paramsDir := a.rc.ROS2.ParamsDir
	if paramsDir == "" {
		dir, err := os.MkdirTemp("", "roboctl-"+runID+"-")
		if err != nil {
			return nil, nil, fmt.Errorf("creating parameters directory: %w", err)
		}
		paramsDir = dir
		cleanup = func() { _ = os.RemoveAll(dir) }
	}

	loc := a.locator()
	return &services.ProcessLauncher{
		Command:   a.rc.ROS2.Command,
		ParamsDir: paramsDir,
		ShareDir: func(pkg string) string {
			return loc.HostPath(variant.SourceRef{Package: pkg, Path: "."})
		},
		Env:         a.rc.ROS2.Env,
		StopTimeout: a.rc.ROS2.StopTimeout,
	}, cleanup, nil
}

// NewRun creates the orchestration run for a plan on the given bus and store.
func (a *Application) NewRun(runID string, plan *Plan, launcher services.Launcher, bus reporting.EventBus, store reporting.StateStore) (*orchestrator.Run, error) {
	return orchestrator.New(orchestrator.Config{
		RunID:       runID,
		Descriptors: plan.Descriptors,
		Artifacts:   plan.Artifacts,
		Launcher:    launcher,
		Bus:         bus,
		Store:       store,
		Clock:       a.clock,
		Variant:     plan.Bundle.ScalarParams(),
	})
}

// Launch resolves, builds and runs the services, blocking until the run has
// finished. Anything that fails before the first launch aborts the run.
func (a *Application) Launch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := reporting.NewRunID()
	bus := reporting.NewEventBus()
	defer bus.Close()
	store := reporting.NewStateStore()

	if a.rc.Metrics.Enabled {
		m := monitor.NewMetrics()
		sub := m.Attach(bus)
		defer bus.Unsubscribe(sub)
		if _, err := m.Serve(ctx, a.rc.Metrics.Address); err != nil {
			logging.Warn("Bootstrap", "Metrics listener disabled: %v", err)
		}
	}

	var tools *statusapi.Tools
	if a.rc.StatusAPI.Enabled {
		tools = statusapi.NewTools(nil)
		srv := statusapi.NewServer(a.rc.StatusAPI.Address, a.config.Version, tools)
		if err := srv.Start(ctx); err != nil {
			logging.Warn("Bootstrap", "Status API disabled: %v", err)
		}
	}

	plan, err := a.Prepare(ctx)
	if err != nil {
		abortBeforeLaunch(runID, bus, store, err)
		return err
	}

	launcher, cleanup, err := a.newLauncher(runID)
	if err != nil {
		abortBeforeLaunch(runID, bus, store, err)
		return err
	}
	defer cleanup()

	run, err := a.NewRun(runID, plan, launcher, bus, store)
	if err != nil {
		abortBeforeLaunch(runID, bus, store, err)
		return err
	}
	if tools != nil {
		tools.SetRun(run)
	}

	if a.config.NoTUI {
		err = a.runCLIMode(ctx, run)
	} else {
		err = a.runTUIMode(ctx, run)
	}
	if err != nil {
		return err
	}
	return runResult(run)
}

func abortBeforeLaunch(runID string, bus reporting.EventBus, store reporting.StateStore, err error) {
	old := store.SetRunState(reporting.RunAborted, err.Error())
	bus.Publish(reporting.NewRunStateEvent(runID, old, reporting.RunAborted, err.Error()))
	logging.Error("Bootstrap", err, "Run %s aborted before any service was started", runID)
}

func runResult(run *orchestrator.Run) error {
	state, reason := run.State()
	if state == reporting.RunDegraded {
		return fmt.Errorf("%w: %s", ErrRunDegraded, reason)
	}
	return nil
}

func (a *Application) styledOutput() bool {
	f, ok := a.out.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (a *Application) printTable(run *orchestrator.Run) {
	state, reason := run.State()
	fmt.Fprint(a.out, reporting.FormatTable(run.Table(), state, reason, a.styledOutput()))
}

// runCLIMode logs every state change and prints the status table once the
// run settles and again when it has finished.
func (a *Application) runCLIMode(ctx context.Context, run *orchestrator.Run) error {
	logging.Info("CLI", "Running in no-TUI mode.")

	reporter := reporting.NewConsoleReporterWithStateStore(run.Store())
	sub := run.Store().Subscribe("")
	defer run.Store().Unsubscribe(sub)
	go func() {
		for change := range sub.Channel {
			reporter.Report(change)
		}
	}()

	if err := run.Start(ctx); err != nil {
		logging.Error("CLI", err, "Failed to start run %s", run.ID())
		return err
	}
	logging.Info("CLI", "Run %s started. Press Ctrl+C to stop all services and exit.", run.ID())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	settled := run.Settled()
	ctxDone := ctx.Done()
	for {
		select {
		case <-sigChan:
			logging.Info("CLI", "--- Shutting down services ---")
			run.Cancel()
		case <-ctxDone:
			ctxDone = nil
			run.Cancel()
		case <-settled:
			settled = nil
			state, _ := run.State()
			logging.Info("CLI", "Run %s settled: %s", run.ID(), state)
			a.printTable(run)
		case <-run.Done():
			a.printTable(run)
			return nil
		}
	}
}

// runTUIMode shows the live status view. Leaving the view stops the run.
func (a *Application) runTUIMode(ctx context.Context, run *orchestrator.Run) error {
	logChan := logging.InitForTUI(logging.ParseLevel(a.rc.Logging.Level))

	if err := run.Start(ctx); err != nil {
		logging.CloseTUIChannel()
		logging.Error("TUI", err, "Failed to start run %s", run.ID())
		return err
	}

	viewErr := tui.RunProgram(ctx, run, run.Store(), logChan)
	logging.CloseTUIChannel()
	if viewErr != nil {
		logging.Error("TUI", viewErr, "Status view failed")
	}

	run.Stop()
	a.printTable(run)
	return viewErr
}
