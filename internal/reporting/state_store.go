package reporting

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrServiceNotFound is returned for services the store does not track.
var ErrServiceNotFound = errors.New("service not found")

// ServiceStateSnapshot is one row of the per-service status table
type ServiceStateSnapshot struct {
	Name  string
	State ServiceState
	// ReachedRunning stays true after a service that was Running exits.
	ReachedRunning bool
	ExitStatus     int
	ErrorDetail    error
	PID            int
	// Trigger names what released the service, e.g. "root" or "on-exit(spawn_entity)".
	Trigger     string
	StartedAt   time.Time
	LastUpdated time.Time
}

// ServiceUpdate is a state transition reported by the orchestrator
type ServiceUpdate struct {
	Name      string
	State     ServiceState
	PID       int
	Status    int
	Error     error
	Trigger   string
	Timestamp time.Time
}

// StateChangeEvent represents a state change event with old and new states
type StateChangeEvent struct {
	Name     string
	OldState ServiceState
	NewState ServiceState
	Snapshot ServiceStateSnapshot
}

// StateSubscription represents a subscription to state changes. Changes
// queue up while the reader is busy, so a slow view sees every transition.
type StateSubscription struct {
	ID   string
	Name string // Service to watch, empty for all services
	// Channel delivers changes in order and is closed once the subscription
	// is closed.
	Channel <-chan StateChangeEvent

	mu     sync.Mutex
	queue  []StateChangeEvent
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newStateSubscription(id, name string) *StateSubscription {
	ch := make(chan StateChangeEvent)
	sub := &StateSubscription{
		ID:      id,
		Name:    name,
		Channel: ch,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go sub.forward(ch)
	return sub
}

// Close closes the subscription. Changes still queued are discarded.
func (s *StateSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.queue = nil
		close(s.done)
	}
}

// IsClosed returns whether the subscription is closed
func (s *StateSubscription) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *StateSubscription) enqueue(e StateChangeEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *StateSubscription) next() (StateChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return StateChangeEvent{}, false
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true
}

// forward moves queued changes to ch until the subscription is closed.
func (s *StateSubscription) forward(ch chan<- StateChangeEvent) {
	defer close(ch)
	for {
		select {
		case <-s.signal:
		case <-s.done:
			return
		}
		for {
			e, ok := s.next()
			if !ok {
				break
			}
			select {
			case ch <- e:
			case <-s.done:
				return
			}
		}
	}
}

// StateStore is the read side of a run: the per-service status table and
// the overall run state. Only the orchestrator control loop writes to it.
type StateStore interface {
	// Register adds services in NotStarted state, keeping registration order.
	Register(names ...string)

	// GetServiceState returns the current state of a service
	GetServiceState(name string) (ServiceStateSnapshot, bool)

	// SetServiceState applies a transition; it returns true if the state changed
	SetServiceState(update ServiceUpdate) (bool, error)

	// Table returns every service in registration order
	Table() []ServiceStateSnapshot

	// GetServicesByState returns all services in a specific state
	GetServicesByState(state ServiceState) []ServiceStateSnapshot

	// RunState returns the overall run state and the reason of the last change
	RunState() (RunState, string)

	// SetRunState records a run state change; it returns the previous state
	SetRunState(state RunState, reason string) RunState

	// Subscribe creates a subscription to state changes for a specific service or all services
	Subscribe(name string) *StateSubscription

	// Unsubscribe removes a subscription
	Unsubscribe(subscription *StateSubscription)

	// GetMetrics returns state store metrics
	GetMetrics() StateStoreMetrics
}

// StateStoreMetrics tracks state store usage
type StateStoreMetrics struct {
	TotalServices      int
	TotalSubscriptions int
	StateChanges       int64
	LastStateChange    time.Time
	ServicesByState    map[ServiceState]int
}

// DefaultStateStore is the default implementation of StateStore
type DefaultStateStore struct {
	order         []string
	states        map[string]ServiceStateSnapshot
	runState      RunState
	runReason     string
	subscriptions map[string]*StateSubscription
	metrics       StateStoreMetrics
	mu            sync.RWMutex
	subIDSeq      int64
}

// NewStateStore creates a new state store
func NewStateStore() StateStore {
	return &DefaultStateStore{
		states:        make(map[string]ServiceStateSnapshot),
		runState:      RunBuilding,
		subscriptions: make(map[string]*StateSubscription),
		metrics: StateStoreMetrics{
			ServicesByState: make(map[ServiceState]int),
		},
	}
}

// Register adds services in NotStarted state
func (s *DefaultStateStore) Register(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, name := range names {
		if _, exists := s.states[name]; exists {
			continue
		}
		s.order = append(s.order, name)
		s.states[name] = ServiceStateSnapshot{Name: name, State: StateNotStarted, LastUpdated: now}
		s.metrics.TotalServices++
		s.metrics.ServicesByState[StateNotStarted]++
	}
}

// GetServiceState returns the current state of a service
func (s *DefaultStateStore) GetServiceState(name string) (ServiceStateSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, exists := s.states[name]
	return snapshot, exists
}

func validTransition(from, to ServiceState) bool {
	switch from {
	case StateNotStarted:
		return to == StateStarting
	case StateStarting:
		return to == StateRunning || to == StateExited
	case StateRunning:
		return to == StateExited
	}
	return false
}

// SetServiceState updates the state of a service
func (s *DefaultStateStore) SetServiceState(update ServiceUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.states[update.Name]
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrServiceNotFound, update.Name)
	}
	if old.State == update.State {
		return false, nil
	}
	if !validTransition(old.State, update.State) {
		return false, fmt.Errorf("service %s: invalid transition %s -> %s", update.Name, old.State, update.State)
	}

	ts := update.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	snap := old
	snap.State = update.State
	snap.LastUpdated = ts
	switch update.State {
	case StateStarting:
		snap.Trigger = update.Trigger
		snap.StartedAt = ts
	case StateRunning:
		snap.ReachedRunning = true
		snap.PID = update.PID
	case StateExited:
		snap.ExitStatus = update.Status
		snap.ErrorDetail = update.Error
	}
	s.states[update.Name] = snap

	s.metrics.ServicesByState[old.State]--
	if s.metrics.ServicesByState[old.State] == 0 {
		delete(s.metrics.ServicesByState, old.State)
	}
	s.metrics.ServicesByState[snap.State]++
	s.metrics.StateChanges++
	s.metrics.LastStateChange = ts

	s.notifySubscribers(StateChangeEvent{
		Name:     update.Name,
		OldState: old.State,
		NewState: snap.State,
		Snapshot: snap,
	})
	return true, nil
}

// Table returns every service in registration order
func (s *DefaultStateStore) Table() []ServiceStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ServiceStateSnapshot, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.states[name])
	}
	return out
}

// GetServicesByState returns all services in a specific state
func (s *DefaultStateStore) GetServicesByState(state ServiceState) []ServiceStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ServiceStateSnapshot
	for _, name := range s.order {
		if snap := s.states[name]; snap.State == state {
			out = append(out, snap)
		}
	}
	return out
}

// RunState returns the overall run state
func (s *DefaultStateStore) RunState() (RunState, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runState, s.runReason
}

// SetRunState records a run state change
func (s *DefaultStateStore) SetRunState(state RunState, reason string) RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.runState
	s.runState = state
	s.runReason = reason
	return old
}

// Subscribe creates a subscription to state changes
func (s *DefaultStateStore) Subscribe(name string) *StateSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subIDSeq++
	subscription := newStateSubscription(fmt.Sprintf("state-sub-%d", s.subIDSeq), name)
	s.subscriptions[subscription.ID] = subscription
	s.metrics.TotalSubscriptions++
	return subscription
}

// Unsubscribe removes a subscription
func (s *DefaultStateStore) Unsubscribe(subscription *StateSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[subscription.ID]; exists {
		subscription.Close()
		delete(s.subscriptions, subscription.ID)
	}
}

// GetMetrics returns state store metrics
func (s *DefaultStateStore) GetMetrics() StateStoreMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := s.metrics
	metrics.ServicesByState = make(map[ServiceState]int, len(s.metrics.ServicesByState))
	for k, v := range s.metrics.ServicesByState {
		metrics.ServicesByState[k] = v
	}
	return metrics
}

// notifySubscribers queues the change for every matching subscription
// without blocking the writer.
func (s *DefaultStateStore) notifySubscribers(event StateChangeEvent) {
	for id, subscription := range s.subscriptions {
		if subscription.Name != "" && subscription.Name != event.Name {
			continue
		}
		if subscription.IsClosed() {
			delete(s.subscriptions, id)
			continue
		}
		subscription.enqueue(event)
	}
}
