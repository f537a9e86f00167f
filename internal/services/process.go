package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"roboctl/internal/descriptor"
	"roboctl/pkg/logging"
)

// ProcessLauncher starts services as external ROS 2 processes.
type ProcessLauncher struct {
	// Command is the ROS 2 command line tool, "ros2" by default.
	Command string
	// ParamsDir receives one parameters file per service.
	ParamsDir string
	// ShareDir resolves $(share PACKAGE) references.
	ShareDir func(pkg string) string
	// Env is appended to the inherited environment.
	Env []string
	// StopTimeout bounds the wait between SIGTERM and SIGKILL.
	StopTimeout time.Duration
}

const defaultStopTimeout = 10 * time.Second

// CommandLine builds the argument vector for a request without starting anything.
func (l *ProcessLauncher) CommandLine(req LaunchRequest) ([]string, error) {
	c := req.Descriptor.Contract
	args, err := ExpandArgs(c.Args, req.Artifacts, l.ShareDir)
	if err != nil {
		return nil, err
	}

	command := l.Command
	if command == "" {
		command = "ros2"
	}

	switch c.Kind {
	case descriptor.KindInclude:
		argv := []string{command, "launch", c.Package, c.Executable}
		argv = append(argv, args...)
		if req.UseSimTime {
			argv = append(argv, "use_sim_time:=true")
		}
		return argv, nil
	case descriptor.KindNode, "":
		argv := []string{command, "run", c.Package, c.Executable}
		argv = append(argv, args...)
		params := MergeParameters(req)
		if len(params) > 0 {
			path, err := l.writeParams(req.Name(), params)
			if err != nil {
				return nil, err
			}
			argv = append(argv, "--ros-args", "--params-file", path)
		}
		return argv, nil
	}
	return nil, fmt.Errorf("unsupported contract kind %q", c.Kind)
}

// writeParams writes a parameters file applying to every node the process starts.
func (l *ProcessLauncher) writeParams(service string, params map[string]interface{}) (string, error) {
	dir := l.ParamsDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parameters directory: %w", err)
	}

	doc := map[string]interface{}{
		"/**": map[string]interface{}{"ros__parameters": params},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding parameters for %s: %w", service, err)
	}

	path := filepath.Join(dir, service+".params.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing parameters for %s: %w", service, err)
	}
	return path, nil
}

// VariantEnv renders the variant scalars as KEY=VALUE entries in key order.
// Launched processes see them in their environment; only descriptors that
// declare the scalars as parameters get them in their parameters file.
func VariantEnv(variant map[string]interface{}) []string {
	keys := make([]string, 0, len(variant))
	for k := range variant {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%v", k, variant[k]))
	}
	return env
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(ctx context.Context, req LaunchRequest) (Process, error) {
	argv, err := l.CommandLine(req)
	if err != nil {
		return nil, err
	}
	label := req.Name()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), VariantEnv(req.Variant)...)
	cmd.Env = append(cmd.Env, l.Env...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", label, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdoutPipe.Close()
		return nil, fmt.Errorf("stderr pipe for %s: %w", label, err)
	}

	if err := cmd.Start(); err != nil {
		stdoutPipe.Close()
		stderrPipe.Close()
		return nil, fmt.Errorf("%v: %w", argv, err)
	}

	p := &osProcess{
		label:   label,
		cmd:     cmd,
		done:    make(chan struct{}),
		timeout: l.StopTimeout,
	}
	if p.timeout == 0 {
		p.timeout = defaultStopTimeout
	}

	var output sync.WaitGroup
	output.Add(2)
	go scanOutput(&output, label, "STDOUT", stdoutPipe)
	go scanOutput(&output, label, "STDERR", stderrPipe)

	go func() {
		// Wait closes the pipes, so the scanners must finish first.
		output.Wait()
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	logging.Info("Launcher", "Started %s (PID: %d): %v", label, cmd.Process.Pid, argv)
	return p, nil
}

func scanOutput(wg *sync.WaitGroup, label, stream string, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.Debug("Launcher", "[%s %s] %s", label, stream, scanner.Text())
	}
}

type osProcess struct {
	label   string
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	timeout time.Duration
}

func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Wait() (int, error) {
	<-p.done
	status := p.cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
		return status, p.waitErr
	}
	return status, nil
}

// Stop sends SIGTERM to the process group and escalates to SIGKILL.
func (p *osProcess) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("terminating %s (PID: %d): %w", p.label, pid, err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	logging.Warn("Launcher", "%s (PID: %d) did not terminate, killing", p.label, pid)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s (PID: %d): %w", p.label, pid, err)
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
