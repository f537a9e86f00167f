package reporting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"roboctl/pkg/logging"
)

// EventHandler is a function that processes events
type EventHandler func(Event)

// EventFilter is a function that determines if an event should be processed
type EventFilter func(Event) bool

// SubscriptionRaceError reports a subscription registered after events for
// the watched services were already published. Subscribers must register
// before the services they watch are launched.
type SubscriptionRaceError struct {
	Services []string
}

func (e *SubscriptionRaceError) Error() string {
	return fmt.Sprintf("subscription registered after events were published for: %s", strings.Join(e.Services, ", "))
}

// EventSubscription is a subscription to events. Every subscription owns an
// unbounded mailbox, so a slow subscriber never loses events and never blocks
// the publisher.
type EventSubscription struct {
	ID     string
	Filter EventFilter
	// Channel delivers events in publish order. It is nil for handler
	// subscriptions and is closed when the subscription is closed.
	Channel <-chan Event

	mu     sync.Mutex
	queue  []Event
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newSubscription(id string, filter EventFilter) *EventSubscription {
	return &EventSubscription{
		ID:     id,
		Filter: filter,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Close closes the subscription. Events still queued are discarded.
func (s *EventSubscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
	s.mu.Unlock()
}

// IsClosed returns whether the subscription is closed
func (s *EventSubscription) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed once the subscription is closed.
func (s *EventSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *EventSubscription) enqueue(e Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

func (s *EventSubscription) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return nil, false
	}
	e := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return e, true
}

// pump moves queued events to deliver until the subscription is closed.
func (s *EventSubscription) pump(deliver func(Event) bool) {
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
			if !deliver(e) {
				return
			}
		}
	}
}

// EventBus provides publish/subscribe functionality for events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(event Event)

	// Subscribe creates a subscription with a handler function. Handlers are
	// called sequentially in publish order.
	Subscribe(filter EventFilter, handler EventHandler) *EventSubscription

	// SubscribeChannel creates a subscription with a channel
	SubscribeChannel(filter EventFilter) *EventSubscription

	// SubscribeServices subscribes to the launch events of the named
	// services. It fails with SubscriptionRaceError if any of them already
	// published a launch event.
	SubscribeServices(services ...string) (*EventSubscription, error)

	// Unsubscribe removes a subscription
	Unsubscribe(subscription *EventSubscription)

	// GetMetrics returns event bus metrics
	GetMetrics() EventBusMetrics

	// Close closes the event bus and all subscriptions
	Close()
}

// EventBusMetrics tracks event bus activity
type EventBusMetrics struct {
	TotalSubscriptions  int
	ActiveSubscriptions int
	EventsPublished     int64
	EventsDelivered     int64
	// EventsDropped counts duplicate exits, which are never delivered twice.
	EventsDropped int64
	LastEventTime time.Time
	EventsByType  map[EventType]int64
}

// DefaultEventBus is the default implementation of EventBus
type DefaultEventBus struct {
	subscriptions map[string]*EventSubscription
	// launched records services that published a launch event; exited
	// records services whose terminal event was delivered.
	launched map[string]bool
	exited   map[string]bool
	metrics  EventBusMetrics
	mu       sync.Mutex
	subIDSeq int64
	closed   bool
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &DefaultEventBus{
		subscriptions: make(map[string]*EventSubscription),
		launched:      make(map[string]bool),
		exited:        make(map[string]bool),
		metrics: EventBusMetrics{
			EventsByType: make(map[EventType]int64),
		},
	}
}

// Publish publishes an event to all subscribers. Publishing never blocks on
// subscribers; the enqueue order is the publish order for every subscriber.
func (eb *DefaultEventBus) Publish(event Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	if le, ok := event.(LaunchEvent); ok {
		if eb.exited[le.Service()] {
			eb.metrics.EventsDropped++
			logging.Warn("EventBus", "Dropping %s: %s already exited", le.Type(), le.Service())
			return
		}
		eb.launched[le.Service()] = true
		if le.IsExit() {
			eb.exited[le.Service()] = true
		}
	}

	delivered := 0
	for id, sub := range eb.subscriptions {
		if sub.IsClosed() {
			delete(eb.subscriptions, id)
			eb.metrics.ActiveSubscriptions--
			continue
		}
		if sub.Filter != nil && !sub.Filter(event) {
			continue
		}
		if sub.enqueue(event) {
			delivered++
		}
	}

	eb.metrics.EventsPublished++
	eb.metrics.EventsByType[event.Type()]++
	eb.metrics.EventsDelivered += int64(delivered)
	eb.metrics.LastEventTime = event.Timestamp()
	logging.Debug("EventBus", "Published %s to %d subscribers", event, delivered)
}

func (eb *DefaultEventBus) register(filter EventFilter) *EventSubscription {
	eb.subIDSeq++
	sub := newSubscription(fmt.Sprintf("sub-%d", eb.subIDSeq), filter)
	eb.subscriptions[sub.ID] = sub
	eb.metrics.TotalSubscriptions++
	eb.metrics.ActiveSubscriptions++
	return sub
}

// Subscribe creates a subscription with a handler function
func (eb *DefaultEventBus) Subscribe(filter EventFilter, handler EventHandler) *EventSubscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}

	sub := eb.register(filter)
	go sub.pump(func(e Event) (keep bool) {
		// A panicking handler loses the event, not the subscription.
		defer func() {
			if r := recover(); r != nil {
				logging.Error("EventBus", fmt.Errorf("%v", r), "Event handler of %s panicked", sub.ID)
				keep = true
			}
		}()
		handler(e)
		return true
	})
	return sub
}

// SubscribeChannel creates a subscription with a channel
func (eb *DefaultEventBus) SubscribeChannel(filter EventFilter) *EventSubscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil
	}
	return eb.subscribeChannel(filter)
}

func (eb *DefaultEventBus) subscribeChannel(filter EventFilter) *EventSubscription {
	sub := eb.register(filter)
	ch := make(chan Event)
	sub.Channel = ch
	go func() {
		defer close(ch)
		sub.pump(func(e Event) bool {
			select {
			case ch <- e:
				return true
			case <-sub.done:
				return false
			}
		})
	}()
	return sub
}

// SubscribeServices subscribes to the launch events of the named services
func (eb *DefaultEventBus) SubscribeServices(services ...string) (*EventSubscription, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	var late []string
	for _, s := range services {
		if eb.launched[s] {
			late = append(late, s)
		}
	}
	if len(late) > 0 {
		return nil, &SubscriptionRaceError{Services: late}
	}

	filter := CombineFilters(
		FilterByType(EventTypeServiceRunning, EventTypeServiceExited),
		FilterBySource(services...),
	)
	return eb.subscribeChannel(filter), nil
}

// Unsubscribe removes a subscription
func (eb *DefaultEventBus) Unsubscribe(subscription *EventSubscription) {
	if subscription == nil {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscription.ID]; exists {
		delete(eb.subscriptions, subscription.ID)
		eb.metrics.ActiveSubscriptions--
	}
	subscription.Close()
}

// GetMetrics returns event bus metrics
func (eb *DefaultEventBus) GetMetrics() EventBusMetrics {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	metrics := eb.metrics
	metrics.EventsByType = make(map[EventType]int64, len(eb.metrics.EventsByType))
	for k, v := range eb.metrics.EventsByType {
		metrics.EventsByType[k] = v
	}
	return metrics
}

// Close closes the event bus and all subscriptions
func (eb *DefaultEventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.closed = true
	for _, sub := range eb.subscriptions {
		sub.Close()
	}
	eb.subscriptions = make(map[string]*EventSubscription)
	eb.metrics.ActiveSubscriptions = 0
}

// FilterByType creates a filter that matches events of specific types
func FilterByType(eventTypes ...EventType) EventFilter {
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}
	return func(event Event) bool {
		return typeMap[event.Type()]
	}
}

// FilterBySource creates a filter that matches events from specific sources
func FilterBySource(sources ...string) EventFilter {
	sourceMap := make(map[string]bool)
	for _, s := range sources {
		sourceMap[s] = true
	}
	return func(event Event) bool {
		return sourceMap[event.Source()]
	}
}

// FilterByRun creates a filter that matches events of one run
func FilterByRun(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID() == runID
	}
}

// CombineFilters combines multiple filters with AND logic
func CombineFilters(filters ...EventFilter) EventFilter {
	return func(event Event) bool {
		for _, filter := range filters {
			if !filter(event) {
				return false
			}
		}
		return true
	}
}
