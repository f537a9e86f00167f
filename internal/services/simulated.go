package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"roboctl/internal/descriptor"
	"roboctl/pkg/logging"
)

// Behavior scripts one simulated service.
type Behavior struct {
	// StartError makes the launch call fail.
	StartError error
	// RunFor is how long the task runs before exiting on its own; zero runs
	// until the task is stopped.
	RunFor time.Duration
	// ExitStatus is reported when the task exits on its own.
	ExitStatus int
}

// DefaultBehavior makes one-shot services (controller spawners, entity
// spawning) exit shortly after start; everything else runs until stopped.
func DefaultBehavior(d descriptor.Descriptor) Behavior {
	switch d.Contract.Executable {
	case "spawner", "spawn_entity.py":
		return Behavior{RunFor: 500 * time.Millisecond}
	}
	return Behavior{}
}

// StoppedStatus is the exit status of a simulated task that was stopped.
const StoppedStatus = 143

// SimulatedLauncher runs services as in-process tasks driven by a clock.
type SimulatedLauncher struct {
	clock     clock.Clock
	behaviors map[string]Behavior
	fallback  func(descriptor.Descriptor) Behavior

	mu       sync.Mutex
	launched []string
	nextPID  int64
}

// NewSimulatedLauncher creates a launcher. behaviors overrides DefaultBehavior
// per service name. A nil clock selects the real clock.
func NewSimulatedLauncher(clk clock.Clock, behaviors map[string]Behavior) *SimulatedLauncher {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SimulatedLauncher{
		clock:     clk,
		behaviors: behaviors,
		fallback:  DefaultBehavior,
		nextPID:   1000,
	}
}

// Launched returns the services launched so far, in call order.
func (l *SimulatedLauncher) Launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.launched))
	copy(out, l.launched)
	return out
}

// Launch implements Launcher.
func (l *SimulatedLauncher) Launch(_ context.Context, req LaunchRequest) (Process, error) {
	b, ok := l.behaviors[req.Name()]
	if !ok {
		b = l.fallback(req.Descriptor)
	}

	l.mu.Lock()
	l.launched = append(l.launched, req.Name())
	l.mu.Unlock()

	if b.StartError != nil {
		return nil, b.StartError
	}

	p := &simProcess{
		label: req.Name(),
		pid:   int(atomic.AddInt64(&l.nextPID, 1)),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	var expired <-chan time.Time
	if b.RunFor > 0 {
		t := l.clock.NewTimer(b.RunFor)
		p.timer = t
		expired = t.C()
	}
	go p.run(expired, b.ExitStatus)

	logging.Debug("Launcher", "Simulating %s (PID: %d, variant %v)", req.Name(), p.pid, req.Variant)
	return p, nil
}

type simProcess struct {
	label    string
	pid      int
	timer    clock.Timer
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	status   int
}

func (p *simProcess) run(expired <-chan time.Time, status int) {
	defer close(p.done)
	select {
	case <-expired:
		p.status = status
	case <-p.stop:
		if p.timer != nil {
			p.timer.Stop()
		}
		p.status = StoppedStatus
	}
}

func (p *simProcess) PID() int { return p.pid }

func (p *simProcess) Wait() (int, error) {
	<-p.done
	return p.status, nil
}

func (p *simProcess) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
