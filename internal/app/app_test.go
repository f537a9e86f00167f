package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboctl/internal/artifact"
	"roboctl/internal/config"
	"roboctl/internal/descriptor"
	"roboctl/internal/reporting"
	"roboctl/internal/services"
	"roboctl/internal/variant"
)

const testShareRoot = "../artifact/testdata/share"

type resolverFunc func(ctx context.Context, raw map[variant.Axis]string) (variant.Selection, error)

func (f resolverFunc) Resolve(ctx context.Context, raw map[variant.Axis]string) (variant.Selection, error) {
	return f(ctx, raw)
}

func noPrompt(_ context.Context, raw map[variant.Axis]string) (variant.Selection, error) {
	return variant.Resolve(raw)
}

func testApp(t *testing.T, profile string, choices map[string]string) (*Application, *bytes.Buffer) {
	t.Helper()
	rc := config.GetDefaultConfig()
	rc.ShareRoot = testShareRoot
	rc.Launcher = config.LauncherSimulated
	rc.Profile = profile
	rc.Choices = choices

	a := newApplication(NewConfig("", true, true), rc)
	a.resolver = resolverFunc(noPrompt)
	out := &bytes.Buffer{}
	a.SetOutput(out)
	return a, out
}

func TestConfig_RawChoices(t *testing.T) {
	cfg := NewConfig("", true, false)
	cfg.RoboctlConfig = &config.RoboctlConfig{Choices: map[string]string{
		"cell_layout":  "lab",
		"end_effector": "none",
	}}
	cfg.Choices[variant.AxisEndEffector] = "gripper"
	cfg.Choices[variant.AxisCellLayout] = ""

	assert.Equal(t, map[variant.Axis]string{
		variant.AxisCellLayout:  "lab",
		variant.AxisEndEffector: "gripper",
	}, cfg.rawChoices())
}

func TestConfig_ApplyOverrides(t *testing.T) {
	rviz := true
	cfg := NewConfig("", false, true)
	cfg.Profile = "interface"
	cfg.Rviz = &rviz
	cfg.LogLevel = "debug"

	rc := config.GetDefaultConfig()
	cfg.applyOverrides(&rc)

	assert.Equal(t, "interface", rc.Profile)
	assert.True(t, rc.RvizEnabled())
	assert.Equal(t, config.LauncherSimulated, rc.Launcher)
	assert.Equal(t, "debug", rc.Logging.Level)
	assert.Equal(t, "text", rc.Logging.Format)
}

func TestNewApplication_ExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roboctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("launcher: simulated\nchoices:\n  cell_layout: lab\n"), 0o644))

	a, err := NewApplication(NewConfig(path, true, false))
	require.NoError(t, err)
	assert.Equal(t, config.LauncherSimulated, a.RoboctlConfig().Launcher)
	assert.Equal(t, "lab", a.RoboctlConfig().Choices["cell_layout"])

	require.NoError(t, os.WriteFile(path, []byte("launcher: docker\n"), 0o644))
	_, err = NewApplication(NewConfig(path, true, false))
	assert.Error(t, err)
}

func TestDescriptorOptions(t *testing.T) {
	rc := config.GetDefaultConfig()
	rc.Profile = "interface"
	rc.Delays.MotionPlanning = 3 * time.Second
	rc.Delays.ExecutionInterfaces = 0

	opts, err := descriptorOptions(rc)
	require.NoError(t, err)
	assert.Equal(t, descriptor.ProfileInterface, opts.Profile)
	assert.Equal(t, 3*time.Second, opts.MotionPlanningDelay)
	assert.Equal(t, 5*time.Second, opts.ExecutionDelay)
	assert.False(t, opts.Rviz)

	rc.Profile = "teleop"
	_, err = descriptorOptions(rc)
	assert.Error(t, err)
}

func TestPrepare_StandGripperSimulation(t *testing.T) {
	a, _ := testApp(t, "simulation", map[string]string{"cell_layout": "stand", "end_effector": "gripper"})

	plan, err := a.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stand/gripper", plan.Selection.Key())
	assert.Equal(t, 11, plan.Descriptors.Len())
	assert.Equal(t, []artifact.Name{artifact.RobotDescription}, plan.Artifacts.Names())

	text := FormatPlan(plan, false)
	assert.Contains(t, text, "cell_layout=stand end_effector=gripper")
	assert.Contains(t, text, "robotiq_controller_RFTJ")
	assert.Contains(t, text, "on-exit(ur_controller)")
	assert.Contains(t, text, "ros2srrc_ur5_gazebo:urdf/ur5.urdf.xacro")
}

func TestPrepare_InterfaceProfileArtifacts(t *testing.T) {
	a, _ := testApp(t, "interface", map[string]string{"cell_layout": "alone", "end_effector": "none"})

	plan, err := a.Prepare(context.Background())
	require.NoError(t, err)
	names := plan.Artifacts.Names()
	assert.Len(t, names, 7)
	assert.NotContains(t, names, artifact.RvizConfig)

	text := FormatPlan(plan, false)
	assert.Contains(t, text, "after-delay(ur_controller)+2s")
	assert.Contains(t, text, "after-delay(ur_controller)+5s")
}

func TestPrepare_InvalidChoiceIsNotDefaulted(t *testing.T) {
	a, _ := testApp(t, "simulation", map[string]string{"cell_layout": "garage", "end_effector": "none"})

	_, err := a.Prepare(context.Background())
	var invalid *variant.InvalidChoiceError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, variant.AxisCellLayout, invalid.Axis)
}

func TestLaunch_MissingSourcesAbortBeforeLaunch(t *testing.T) {
	a, out := testApp(t, "simulation", map[string]string{"cell_layout": "alone", "end_effector": "none"})
	a.rc.ShareRoot = t.TempDir()

	err := a.Launch(context.Background())
	var missing *artifact.ArtifactMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, artifact.RobotDescription, missing.Artifact)
	assert.Empty(t, out.String())
}

func startCLIRun(t *testing.T, a *Application, launcher services.Launcher) (*bytes.Buffer, func() error, func() (reporting.RunState, error)) {
	t.Helper()
	plan, err := a.Prepare(context.Background())
	require.NoError(t, err)

	run, err := a.NewRun("run-test", plan, launcher, reporting.NewEventBus(), reporting.NewStateStore())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.runCLIMode(ctx, run) }()

	waitSettled := func() (reporting.RunState, error) {
		wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer wcancel()
		return run.WaitSettled(wctx)
	}
	stop := func() error {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
			return runResult(run)
		case <-time.After(5 * time.Second):
			t.Fatal("CLI mode did not return after cancellation")
			return nil
		}
	}
	t.Cleanup(cancel)
	return a.out.(*bytes.Buffer), stop, waitSettled
}

func TestRunCLIMode_SteadyThenCancel(t *testing.T) {
	a, _ := testApp(t, "simulation", map[string]string{"cell_layout": "alone", "end_effector": "none"})

	out, stop, waitSettled := startCLIRun(t, a, services.NewSimulatedLauncher(nil, nil))
	state, err := waitSettled()
	require.NoError(t, err)
	assert.Equal(t, reporting.RunSteady, state)

	require.NoError(t, stop())
	assert.Contains(t, out.String(), "Run: Steady")
	assert.Contains(t, out.String(), "ur_controller")
}

type recordingLauncher struct {
	services.Launcher
	mu   sync.Mutex
	reqs []services.LaunchRequest
}

func (l *recordingLauncher) Launch(ctx context.Context, req services.LaunchRequest) (services.Process, error) {
	l.mu.Lock()
	l.reqs = append(l.reqs, req)
	l.mu.Unlock()
	return l.Launcher.Launch(ctx, req)
}

func TestNewRun_EveryServiceReceivesVariant(t *testing.T) {
	a, _ := testApp(t, "simulation", map[string]string{"cell_layout": "stand", "end_effector": "gripper"})
	launcher := &recordingLauncher{Launcher: services.NewSimulatedLauncher(nil, nil)}

	_, stop, waitSettled := startCLIRun(t, a, launcher)
	state, err := waitSettled()
	require.NoError(t, err)
	assert.Equal(t, reporting.RunSteady, state)
	require.NoError(t, stop())

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	require.Len(t, launcher.reqs, 11)
	for _, req := range launcher.reqs {
		assert.Equal(t, "robotiq_2f85", req.Variant["EE_PARAM"], req.Name())
	}
}

func TestRunCLIMode_StartFailureIsDegraded(t *testing.T) {
	a, _ := testApp(t, "simulation", map[string]string{"cell_layout": "alone", "end_effector": "none"})
	launcher := services.NewSimulatedLauncher(nil, map[string]services.Behavior{
		descriptor.Gazebo: {StartError: errors.New("gzserver not found")},
	})

	out, stop, waitSettled := startCLIRun(t, a, launcher)
	state, err := waitSettled()
	require.NoError(t, err)
	assert.Equal(t, reporting.RunDegraded, state)

	err = stop()
	assert.ErrorIs(t, err, ErrRunDegraded)
	assert.Contains(t, out.String(), "status -1: failed to start gazebo")
}

func TestWriteArtifacts(t *testing.T) {
	a, _ := testApp(t, "interface", map[string]string{"cell_layout": "lab", "end_effector": "gripper"})
	a.rc.Rviz = boolPtr(true)

	plan, err := a.Prepare(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteArtifacts(plan.Artifacts, dir)
	require.NoError(t, err)
	assert.Len(t, paths, len(artifact.AllNames))
	assert.Contains(t, paths, filepath.Join(dir, "robot_description.urdf"))

	data, err := os.ReadFile(filepath.Join(dir, ArtifactFileName(artifact.RvizConfig)))
	require.NoError(t, err)
	doc, err := ArtifactDocument(plan.Artifacts, string(artifact.RvizConfig))
	require.NoError(t, err)
	assert.Equal(t, doc, data)

	_, err = ArtifactDocument(plan.Artifacts, "world")
	assert.Error(t, err)
}

func TestArtifactFileName(t *testing.T) {
	assert.Equal(t, "robot_description_semantic.srdf", ArtifactFileName(artifact.RobotDescriptionSemantic))
	assert.Equal(t, "joint_limits.yaml", ArtifactFileName(artifact.JointLimits))
}

func boolPtr(b bool) *bool { return &b }
