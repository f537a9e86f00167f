package reporting

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *EventSubscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.Channel:
		require.True(t, ok, "subscription channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestNewEventBus(t *testing.T) {
	bus := NewEventBus()
	assert.NotNil(t, bus)

	metrics := bus.GetMetrics()
	assert.Equal(t, 0, metrics.TotalSubscriptions)
	assert.Equal(t, 0, metrics.ActiveSubscriptions)
	assert.Equal(t, int64(0), metrics.EventsPublished)
}

func TestEventBus_SubscribeServices_DeliversInOrder(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub, err := bus.SubscribeServices("spawn_entity", "ur_controller")
	require.NoError(t, err)

	bus.Publish(NewRunningEvent("r1", "spawn_entity", 10))
	bus.Publish(NewRunningEvent("r1", "gazebo", 11))
	bus.Publish(NewExitedEvent("r1", "spawn_entity", 0, nil))
	bus.Publish(NewRunningEvent("r1", "ur_controller", 12))

	first := receive(t, sub).(LaunchEvent)
	assert.Equal(t, "spawn_entity", first.Service())
	assert.Equal(t, EventTypeServiceRunning, first.Type())

	second := receive(t, sub).(LaunchEvent)
	assert.True(t, second.IsExit())
	assert.Equal(t, 0, second.Status)

	third := receive(t, sub).(LaunchEvent)
	assert.Equal(t, "ur_controller", third.Service())
}

func TestEventBus_SlowSubscriberDoesNotLoseEvents(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub := bus.SubscribeChannel(FilterByType(EventTypeServiceExited))
	const n = 500
	for i := 0; i < n; i++ {
		bus.Publish(NewExitedEvent("r1", "svc-"+string(rune('a'+i%26))+string(rune('a'+i/26)), i, nil))
	}

	for i := 0; i < n; i++ {
		e := receive(t, sub).(LaunchEvent)
		assert.Equal(t, i, e.Status)
	}
	assert.Equal(t, int64(n), bus.GetMetrics().EventsDelivered)
}

func TestEventBus_ExitDeliveredAtMostOnce(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	sub, err := bus.SubscribeServices("spawn_entity")
	require.NoError(t, err)

	bus.Publish(NewExitedEvent("r1", "spawn_entity", 0, nil))
	bus.Publish(NewExitedEvent("r1", "spawn_entity", 1, nil))
	bus.Publish(NewRunningEvent("r1", "spawn_entity", 1))

	e := receive(t, sub).(LaunchEvent)
	assert.Equal(t, 0, e.Status)

	select {
	case extra := <-sub.Channel:
		t.Fatalf("unexpected second delivery: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int64(2), bus.GetMetrics().EventsDropped)
}

func TestEventBus_LateSubscriptionIsRejected(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	bus.Publish(NewRunningEvent("r1", "gazebo", 1))

	sub, err := bus.SubscribeServices("gazebo", "spawn_entity")
	assert.Nil(t, sub)

	var race *SubscriptionRaceError
	require.True(t, errors.As(err, &race))
	assert.Equal(t, []string{"gazebo"}, race.Services)
}

func TestEventBus_HandlerSubscription(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	bus.Subscribe(FilterByRun("r2"), func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Source())
		if len(got) == 2 {
			close(done)
		}
	})

	bus.Publish(NewRunningEvent("r1", "other-run", 1))
	bus.Publish(NewRunningEvent("r2", "a", 1))
	bus.Publish(NewRunStateEvent("r2", RunLaunching, RunSteady, ""))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "run"}, got)
}

func TestEventBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	calls := make(chan string, 3)
	sub := bus.Subscribe(nil, func(e Event) {
		calls <- e.Source()
		if e.Source() == "boom" {
			panic("handler failure")
		}
	})

	bus.Publish(NewRunningEvent("r1", "boom", 1))
	bus.Publish(NewRunningEvent("r1", "after", 1))
	bus.Publish(NewExitedEvent("r1", "after", 0, nil))

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case c := <-calls:
			got = append(got, c)
		case <-time.After(time.Second):
			t.Fatalf("delivery stopped after %v", got)
		}
	}
	assert.Equal(t, []string{"boom", "after", "after"}, got)
	assert.False(t, sub.IsClosed())
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus()
	sub := bus.SubscribeChannel(nil)
	bus.Unsubscribe(sub)

	select {
	case _, ok := <-sub.Channel:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.True(t, sub.IsClosed())
	assert.Equal(t, 0, bus.GetMetrics().ActiveSubscriptions)

	bus.Close()
	bus.Publish(NewRunningEvent("r1", "x", 1))
	assert.Equal(t, int64(0), bus.GetMetrics().EventsPublished)
	assert.Nil(t, bus.SubscribeChannel(nil))
}

func TestLaunchEvent_String(t *testing.T) {
	assert.Equal(t, "move exited with status 2", NewExitedEvent("r", "move", 2, nil).String())
	assert.Equal(t, "move exited with status -1 (error: no such file)", NewExitedEvent("r", "move", -1, errors.New("no such file")).String())
	assert.Equal(t, "gazebo running (pid 42)", NewRunningEvent("r", "gazebo", 42).String())
	assert.NotEmpty(t, NewRunID())
}
