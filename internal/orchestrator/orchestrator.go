package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"roboctl/internal/artifact"
	"roboctl/internal/descriptor"
	"roboctl/internal/reporting"
	"roboctl/internal/services"
	"roboctl/pkg/logging"
)

// DefaultStopTimeout bounds how long cancellation waits for one service.
const DefaultStopTimeout = 15 * time.Second

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("run already started")

// Config holds everything a run needs.
type Config struct {
	// RunID correlates events and logs; a fresh id is generated when empty.
	RunID       string
	Descriptors *descriptor.Set
	Artifacts   *artifact.Set
	Launcher    services.Launcher
	// Bus and Store default to fresh instances owned by the run.
	Bus   reporting.EventBus
	Store reporting.StateStore
	// Clock drives after-delay edges; the real clock when nil.
	Clock       clock.Clock
	StopTimeout time.Duration
	// Variant holds the scalar parameters of the active variant, handed to
	// every launch call.
	Variant map[string]interface{}
}

// Run is one orchestration run.
type Run struct {
	id          string
	set         *descriptor.Set
	artifacts   *artifact.Set
	launcher    services.Launcher
	bus         reporting.EventBus
	store       reporting.StateStore
	clock       clock.Clock
	stopTimeout time.Duration
	variant     map[string]interface{}

	cancelCh   chan struct{}
	cancelOnce sync.Once
	settledCh  chan struct{}
	done       chan struct{}

	// Owned by the control loop.
	sub          *reporting.EventSubscription
	launchCancel context.CancelFunc
	results      chan launchResult
	due          chan int
	procs        map[string]*process
	pending      map[string]int
	released     map[edgeRef]bool
	timers       map[int]*delayTimer
	timerSeq     int
	inflight     int
	failed       []string
	settled      bool

	mu      sync.Mutex
	started bool
	history []string
}

// edgeRef addresses one edge of a dependent service.
type edgeRef struct {
	service string
	index   int
}

type launchResult struct {
	name string
	proc services.Process
	err  error
}

// process is a launched service. exited is closed once Wait has returned.
type process struct {
	proc   services.Process
	exited chan struct{}
	status int
	err    error
}

// delayTimer releases after-delay edges that share a predecessor exit and delay.
type delayTimer struct {
	timer clock.Timer
	refs  []edgeRef
	stop  chan struct{}
}

// New creates a run in the Building state. Every artifact the descriptors
// require must be present in cfg.Artifacts.
func New(cfg Config) (*Run, error) {
	if cfg.Descriptors == nil {
		return nil, fmt.Errorf("descriptor set is required")
	}
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	for _, name := range cfg.Descriptors.RequiredArtifacts() {
		if _, ok := cfg.Artifacts.Get(name); !ok {
			return nil, fmt.Errorf("artifact %s is required by the descriptor set but was not built", name)
		}
	}

	r := &Run{
		id:          cfg.RunID,
		set:         cfg.Descriptors,
		artifacts:   cfg.Artifacts,
		launcher:    cfg.Launcher,
		bus:         cfg.Bus,
		store:       cfg.Store,
		clock:       cfg.Clock,
		stopTimeout: cfg.StopTimeout,
		variant:     cfg.Variant,
		cancelCh:    make(chan struct{}),
		settledCh:   make(chan struct{}),
		done:        make(chan struct{}),
		results:     make(chan launchResult, cfg.Descriptors.Len()),
		due:         make(chan int),
		procs:       make(map[string]*process),
		pending:     make(map[string]int),
		released:    make(map[edgeRef]bool),
		timers:      make(map[int]*delayTimer),
	}
	if r.id == "" {
		r.id = reporting.NewRunID()
	}
	if r.bus == nil {
		r.bus = reporting.NewEventBus()
	}
	if r.store == nil {
		r.store = reporting.NewStateStore()
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.stopTimeout <= 0 {
		r.stopTimeout = DefaultStopTimeout
	}

	for _, d := range r.set.Descriptors() {
		r.pending[d.Name] = len(d.GatingEdges())
	}
	r.store.Register(r.set.Names()...)
	r.store.SetRunState(reporting.RunBuilding, "")
	return r, nil
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Descriptors returns the descriptor set of the run.
func (r *Run) Descriptors() *descriptor.Set { return r.set }

// Artifacts returns the artifacts shared by the services of the run.
func (r *Run) Artifacts() *artifact.Set { return r.artifacts }

// Bus returns the event bus of the run.
func (r *Run) Bus() reporting.EventBus { return r.bus }

// Store returns the state store of the run.
func (r *Run) Store() reporting.StateStore { return r.store }

// State returns the overall run state and the reason for it.
func (r *Run) State() (reporting.RunState, string) {
	return r.store.RunState()
}

// Table returns the per-service status table in descriptor order.
func (r *Run) Table() []reporting.ServiceStateSnapshot {
	return r.store.Table()
}

// History returns the services in the order they entered Starting.
func (r *Run) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.history))
	copy(out, r.history)
	return out
}

// Start subscribes to the launch events of every service and starts the
// control loop, which issues the root services. It does not wait for anything
// to run.
func (r *Run) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	sub, err := r.bus.SubscribeServices(r.set.Names()...)
	if err != nil {
		r.setRunState(reporting.RunAborted, err.Error())
		close(r.settledCh)
		close(r.done)
		return err
	}
	r.sub = sub

	r.setRunState(reporting.RunLaunching, "")
	logging.Info("Orchestrator", "Run %s launching %d services", r.id, r.set.Len())

	launchCtx, cancel := context.WithCancel(ctx)
	r.launchCancel = cancel
	go r.loop(ctx, launchCtx)
	return nil
}

// Cancel stops the run. Safe to call more than once and before Start.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// Stop cancels the run and waits for the control loop to finish.
func (r *Run) Stop() {
	r.Cancel()
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.done
	}
}

// Settled is closed when the run reaches Steady, Degraded or Aborted.
func (r *Run) Settled() <-chan struct{} { return r.settledCh }

// Done is closed when the control loop has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// WaitSettled blocks until the run settles or ctx is done.
func (r *Run) WaitSettled(ctx context.Context) (reporting.RunState, error) {
	select {
	case <-r.settledCh:
		state, _ := r.store.RunState()
		return state, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Run) setRunState(state reporting.RunState, reason string) {
	old := r.store.SetRunState(state, reason)
	if old == state {
		return
	}
	r.bus.Publish(reporting.NewRunStateEvent(r.id, old, state, reason))
	if reason != "" {
		logging.Info("Orchestrator", "Run %s: %s -> %s (%s)", r.id, old, state, reason)
	} else {
		logging.Info("Orchestrator", "Run %s: %s -> %s", r.id, old, state)
	}
}

func (r *Run) loop(ctx, launchCtx context.Context) {
	defer close(r.done)
	defer r.launchCancel()

	for _, d := range r.set.Descriptors() {
		if d.IsRoot() {
			r.start(launchCtx, d, "root")
		}
	}
	r.evaluate()

	for {
		// Cancellation wins over anything else that is ready.
		select {
		case <-r.cancelCh:
			r.abort("cancelled by operator")
			return
		default:
		}

		if r.idle() {
			r.finish()
			return
		}

		select {
		case <-ctx.Done():
			r.abort(fmt.Sprintf("context done: %v", ctx.Err()))
			return
		case <-r.cancelCh:
			r.abort("cancelled by operator")
			return
		case res := <-r.results:
			r.handleLaunch(res)
		case ev, ok := <-r.sub.Channel:
			if !ok {
				r.abort("event bus closed")
				return
			}
			r.handleEvent(launchCtx, ev)
		case id := <-r.due:
			r.handleDue(launchCtx, id)
		}
	}
}

// start moves a service to Starting and issues its launch call.
func (r *Run) start(ctx context.Context, d descriptor.Descriptor, trigger string) {
	if _, err := r.store.SetServiceState(reporting.ServiceUpdate{
		Name:    d.Name,
		State:   reporting.StateStarting,
		Trigger: trigger,
	}); err != nil {
		logging.Error("Orchestrator", err, "Cannot start %s", d.Name)
		return
	}
	r.mu.Lock()
	r.history = append(r.history, d.Name)
	r.mu.Unlock()
	logging.Info("Orchestrator", "Starting %s (%s)", d.Name, trigger)

	arts, err := r.artifacts.Select(d.Contract.Artifacts)
	if err != nil {
		r.inflight++
		r.results <- launchResult{name: d.Name, err: err}
		return
	}
	req := services.LaunchRequest{
		RunID:      r.id,
		Descriptor: d,
		Artifacts:  arts,
		Params:     d.Contract.Params,
		Variant:    copyParams(r.variant),
		UseSimTime: d.Contract.UseSimTime,
	}

	r.inflight++
	go func() {
		proc, err := r.launcher.Launch(ctx, req)
		r.results <- launchResult{name: d.Name, proc: proc, err: err}
	}()
}

func (r *Run) handleLaunch(res launchResult) {
	r.inflight--
	if res.err != nil {
		startErr := &services.ServiceStartError{Service: res.name, Err: res.err}
		logging.Error("Orchestrator", startErr, "Launch failed")
		r.failed = append(r.failed, res.name)
		r.setRunState(reporting.RunDegraded, startErr.Error())
		// The failure is the service's exit; dependents gated on it still start.
		// The service stays Starting until handleEvent records the exit, so
		// the loop cannot go idle ahead of it.
		r.bus.Publish(reporting.NewExitedEvent(r.id, res.name, -1, startErr))
		return
	}
	p := r.track(res)
	r.bus.Publish(reporting.NewRunningEvent(r.id, res.name, p.proc.PID()))
	go r.supervise(res.name, p, true)
}

func (r *Run) track(res launchResult) *process {
	p := &process{proc: res.proc, exited: make(chan struct{})}
	r.procs[res.name] = p
	return p
}

// supervise waits for the service to exit and publishes its terminal event.
func (r *Run) supervise(name string, p *process, publish bool) {
	status, err := p.proc.Wait()
	p.status, p.err = status, err
	close(p.exited)
	if publish {
		r.bus.Publish(reporting.NewExitedEvent(r.id, name, status, err))
	}
}

func (r *Run) handleEvent(ctx context.Context, ev reporting.Event) {
	le, ok := ev.(reporting.LaunchEvent)
	if !ok {
		return
	}
	name := le.Service()

	switch le.Type() {
	case reporting.EventTypeServiceRunning:
		if _, err := r.store.SetServiceState(reporting.ServiceUpdate{
			Name:      name,
			State:     reporting.StateRunning,
			PID:       le.PID,
			Timestamp: le.Timestamp(),
		}); err != nil {
			logging.Error("Orchestrator", err, "Recording %s", le)
		}
	case reporting.EventTypeServiceExited:
		if _, err := r.store.SetServiceState(reporting.ServiceUpdate{
			Name:      name,
			State:     reporting.StateExited,
			Status:    le.Status,
			Error:     le.Error,
			Timestamp: le.Timestamp(),
		}); err != nil {
			logging.Error("Orchestrator", err, "Recording %s", le)
		}
		if le.Status != 0 && le.Error == nil {
			logging.Warn("Orchestrator", "%s", le)
		} else {
			logging.Debug("Orchestrator", "%s", le)
		}
		r.release(ctx, name)
	}
	r.evaluate()
}

// release handles the exit of pred for every edge that waits on it.
// Dependents come back in descriptor order, which fixes the launch order
// among siblings.
func (r *Run) release(ctx context.Context, pred string) {
	delayed := map[time.Duration]*delayTimer{}
	var delays []time.Duration

	for _, dep := range r.set.Dependents(pred) {
		d, _ := r.set.Get(dep)
		for i, e := range d.Edges {
			if e.Predecessor != pred || !e.Gating() {
				continue
			}
			ref := edgeRef{service: dep, index: i}
			switch e.Kind {
			case descriptor.OnExit:
				r.satisfy(ctx, ref)
			case descriptor.AfterDelay:
				t, ok := delayed[e.Delay]
				if !ok {
					t = &delayTimer{stop: make(chan struct{})}
					delayed[e.Delay] = t
					delays = append(delays, e.Delay)
				}
				t.refs = append(t.refs, ref)
			}
		}
	}

	for _, delay := range delays {
		r.schedule(delayed[delay], delay)
	}
}

func (r *Run) schedule(t *delayTimer, delay time.Duration) {
	r.timerSeq++
	id := r.timerSeq
	t.timer = r.clock.NewTimer(delay)
	r.timers[id] = t
	logging.Debug("Orchestrator", "Timer %d armed for %s (%d services)", id, delay, len(t.refs))

	go func() {
		select {
		case <-t.timer.C():
		case <-t.stop:
			return
		}
		select {
		case r.due <- id:
		case <-t.stop:
		case <-r.done:
		}
	}()
}

func (r *Run) handleDue(ctx context.Context, id int) {
	t, ok := r.timers[id]
	if !ok {
		return
	}
	delete(r.timers, id)
	for _, ref := range t.refs {
		r.satisfy(ctx, ref)
	}
	r.evaluate()
}

// satisfy releases one edge and starts the dependent once nothing holds it back.
func (r *Run) satisfy(ctx context.Context, ref edgeRef) {
	if r.released[ref] {
		return
	}
	r.released[ref] = true
	r.pending[ref.service]--
	if r.pending[ref.service] > 0 {
		return
	}
	snap, ok := r.store.GetServiceState(ref.service)
	if !ok || snap.State != reporting.StateNotStarted {
		return
	}
	d, _ := r.set.Get(ref.service)
	r.start(ctx, d, d.Edges[ref.index].String())
}

// evaluate settles the run once every leaf has reached Running or failed.
func (r *Run) evaluate() {
	if r.settled {
		return
	}
	leaves := r.set.Leaves()
	for _, leaf := range leaves {
		snap, _ := r.store.GetServiceState(leaf)
		if !snap.ReachedRunning && snap.State != reporting.StateExited {
			return
		}
	}

	if len(r.failed) > 0 {
		r.markSettled(reporting.RunDegraded, fmt.Sprintf("%d services failed to start", len(r.failed)))
		return
	}
	r.markSettled(reporting.RunSteady, fmt.Sprintf("%d leaf services running", len(leaves)))
}

func (r *Run) markSettled(state reporting.RunState, reason string) {
	r.settled = true
	r.setRunState(state, reason)
	close(r.settledCh)
}

// idle reports whether nothing can happen any more: no launch calls or
// timers are outstanding and every started service has exited.
func (r *Run) idle() bool {
	if r.inflight > 0 || len(r.timers) > 0 {
		return false
	}
	for _, snap := range r.store.Table() {
		if snap.State == reporting.StateStarting || snap.State == reporting.StateRunning {
			return false
		}
	}
	return true
}

func (r *Run) finish() {
	r.bus.Unsubscribe(r.sub)
	if !r.settled {
		var stuck []string
		for _, snap := range r.store.GetServicesByState(reporting.StateNotStarted) {
			stuck = append(stuck, snap.Name)
		}
		r.markSettled(reporting.RunDegraded, fmt.Sprintf("services can no longer start: %v", stuck))
	}
	logging.Info("Orchestrator", "Run %s finished: every started service has exited", r.id)
}

// abort stops accepting launch events and stops the services that are
// Running or Starting, in reverse dependency order.
func (r *Run) abort(reason string) {
	r.bus.Unsubscribe(r.sub)
	r.launchCancel()
	for id, t := range r.timers {
		t.timer.Stop()
		close(t.stop)
		delete(r.timers, id)
	}

	if !r.settled {
		r.markSettled(reporting.RunAborted, reason)
	} else {
		logging.Info("Orchestrator", "Run %s shutting down: %s", r.id, reason)
	}

	r.drainLaunches()

	order := r.set.TopologicalOrder()
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if p, ok := r.procs[name]; ok {
			r.stopService(name, p)
		}
	}
}

// drainLaunches collects launch calls still in flight; processes that come
// back are stopped with the rest.
func (r *Run) drainLaunches() {
	if r.inflight == 0 {
		return
	}
	timeout := time.NewTimer(r.stopTimeout)
	defer timeout.Stop()

	for r.inflight > 0 {
		select {
		case res := <-r.results:
			r.inflight--
			if res.err != nil {
				r.recordExit(res.name, -1, &services.ServiceStartError{Service: res.name, Err: res.err})
				continue
			}
			logging.Info("Orchestrator", "%s started after cancellation, stopping it", res.name)
			go r.supervise(res.name, r.track(res), false)
		case <-timeout.C:
			logging.Warn("Orchestrator", "%d launch calls did not return after cancellation", r.inflight)
			return
		}
	}
}

func (r *Run) stopService(name string, p *process) {
	select {
	case <-p.exited:
		r.recordExit(name, p.status, p.err)
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()

	logging.Info("Orchestrator", "Stopping %s", name)
	if err := p.proc.Stop(ctx); err != nil {
		logging.Error("Orchestrator", err, "Failed to stop %s", name)
	}
	select {
	case <-p.exited:
		r.recordExit(name, p.status, p.err)
	case <-ctx.Done():
		logging.Warn("Orchestrator", "%s did not exit within %s", name, r.stopTimeout)
	}
}

func (r *Run) recordExit(name string, status int, err error) {
	if _, setErr := r.store.SetServiceState(reporting.ServiceUpdate{
		Name:   name,
		State:  reporting.StateExited,
		Status: status,
		Error:  err,
	}); setErr != nil {
		logging.Error("Orchestrator", setErr, "Recording exit of %s", name)
	}
}

func copyParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
