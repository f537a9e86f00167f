package reporting

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_RegisterKeepsOrder(t *testing.T) {
	store := NewStateStore()
	store.Register("gazebo", "spawn_entity", "ur_controller", "gazebo")

	table := store.Table()
	require.Len(t, table, 3)
	assert.Equal(t, "gazebo", table[0].Name)
	assert.Equal(t, "ur_controller", table[2].Name)
	for _, row := range table {
		assert.Equal(t, StateNotStarted, row.State)
	}

	state, _ := store.RunState()
	assert.Equal(t, RunBuilding, state)
}

func TestStateStore_Transitions(t *testing.T) {
	store := NewStateStore()
	store.Register("spawn_entity")

	changed, err := store.SetServiceState(ServiceUpdate{Name: "spawn_entity", State: StateStarting, Trigger: "root"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.SetServiceState(ServiceUpdate{Name: "spawn_entity", State: StateStarting})
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.SetServiceState(ServiceUpdate{Name: "spawn_entity", State: StateRunning, PID: 7})
	require.NoError(t, err)
	_, err = store.SetServiceState(ServiceUpdate{Name: "spawn_entity", State: StateExited, Status: 0})
	require.NoError(t, err)

	snap, ok := store.GetServiceState("spawn_entity")
	require.True(t, ok)
	assert.Equal(t, StateExited, snap.State)
	assert.True(t, snap.ReachedRunning)
	assert.Equal(t, 7, snap.PID)
	assert.Equal(t, "root", snap.Trigger)

	_, err = store.SetServiceState(ServiceUpdate{Name: "spawn_entity", State: StateRunning})
	assert.Error(t, err)

	_, err = store.SetServiceState(ServiceUpdate{Name: "ghost", State: StateStarting})
	assert.True(t, errors.Is(err, ErrServiceNotFound))

	metrics := store.GetMetrics()
	assert.Equal(t, int64(3), metrics.StateChanges)
	assert.Equal(t, map[ServiceState]int{StateExited: 1}, metrics.ServicesByState)
}

func TestStateStore_StartFailureSkipsRunning(t *testing.T) {
	store := NewStateStore()
	store.Register("move")
	_, _ = store.SetServiceState(ServiceUpdate{Name: "move", State: StateStarting})
	_, err := store.SetServiceState(ServiceUpdate{Name: "move", State: StateExited, Status: -1, Error: errors.New("exec: not found")})
	require.NoError(t, err)

	snap, _ := store.GetServiceState("move")
	assert.False(t, snap.ReachedRunning)
	assert.Equal(t, -1, snap.ExitStatus)
	assert.Len(t, store.GetServicesByState(StateExited), 1)
}

func TestStateStore_Subscribe(t *testing.T) {
	store := NewStateStore()
	store.Register("a", "b")

	all := store.Subscribe("")
	onlyB := store.Subscribe("b")

	_, _ = store.SetServiceState(ServiceUpdate{Name: "a", State: StateStarting})
	_, _ = store.SetServiceState(ServiceUpdate{Name: "b", State: StateStarting})

	assert.Equal(t, "a", (<-all.Channel).Name)
	assert.Equal(t, "b", (<-all.Channel).Name)
	change := <-onlyB.Channel
	assert.Equal(t, "b", change.Name)
	assert.Equal(t, StateNotStarted, change.OldState)
	assert.Equal(t, StateStarting, change.NewState)

	store.Unsubscribe(all)
	assert.True(t, all.IsClosed())
}

func TestStateStore_SlowSubscriberSeesEveryChange(t *testing.T) {
	store := NewStateStore()
	names := make([]string, 250)
	for i := range names {
		names[i] = fmt.Sprintf("svc-%03d", i)
	}
	store.Register(names...)
	sub := store.Subscribe("")
	defer store.Unsubscribe(sub)

	// Nobody reads while the burst is written.
	for _, name := range names {
		_, err := store.SetServiceState(ServiceUpdate{Name: name, State: StateStarting})
		require.NoError(t, err)
	}

	for _, name := range names {
		select {
		case change := <-sub.Channel:
			assert.Equal(t, name, change.Name)
			assert.Equal(t, StateStarting, change.NewState)
		case <-time.After(time.Second):
			t.Fatalf("change for %s was lost", name)
		}
	}
}

func TestStateStore_UnsubscribeClosesChannel(t *testing.T) {
	store := NewStateStore()
	store.Register("a")
	sub := store.Subscribe("a")
	_, _ = store.SetServiceState(ServiceUpdate{Name: "a", State: StateStarting})
	store.Unsubscribe(sub)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Channel:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestStateStore_RunState(t *testing.T) {
	store := NewStateStore()
	old := store.SetRunState(RunLaunching, "")
	assert.Equal(t, RunBuilding, old)
	store.SetRunState(RunDegraded, "move failed to start")

	state, reason := store.RunState()
	assert.Equal(t, RunDegraded, state)
	assert.Equal(t, "move failed to start", reason)
	assert.True(t, state.Settled())
	assert.False(t, RunLaunching.Settled())
}

func TestFormatTable(t *testing.T) {
	rows := []ServiceStateSnapshot{
		{Name: "gazebo", State: StateRunning, PID: 42},
		{Name: "spawn_entity", State: StateExited, ExitStatus: 0},
		{Name: "a_service_name_that_is_far_too_long_for_the_column", State: StateNotStarted},
	}
	out := FormatTable(rows, RunSteady, "", false)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "SERVICE"))
	assert.Contains(t, lines[1], "pid 42")
	assert.Contains(t, lines[2], "status 0")
	assert.Contains(t, lines[3], "…")
	assert.Equal(t, "Run: Steady", lines[4])
}

func TestCell(t *testing.T) {
	assert.Equal(t, "ab  ", Cell("ab", 4))
	assert.Equal(t, "abc…", Cell("abcdef", 4))
}
