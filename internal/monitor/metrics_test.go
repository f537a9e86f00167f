package monitor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboctl/internal/reporting"
	"roboctl/internal/services"
)

// histogramSamples returns the number of observations of a histogram.
func histogramSamples(t *testing.T, m *Metrics, name string) uint64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		return mf.GetMetric()[0].GetHistogram().GetSampleCount()
	}
	t.Fatalf("histogram %s not registered", name)
	return 0
}

func TestMetrics_LaunchAndExit(t *testing.T) {
	m := NewMetrics()

	m.Observe(reporting.NewRunningEvent("run", "gazebo", 10))
	m.Observe(reporting.NewRunningEvent("run", "spawn_entity", 11))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ServicesRunning))

	m.Observe(reporting.NewExitedEvent("run", "spawn_entity", 0, nil))
	m.Observe(reporting.NewExitedEvent("run", "gazebo", 255, nil))
	m.Observe(reporting.NewExitedEvent("run", "move", -1, &services.ServiceStartError{Service: "move", Err: errors.New("no such package")}))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ServicesRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LaunchesTotal.WithLabelValues("gazebo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExitsTotal.WithLabelValues("spawn_entity", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExitsTotal.WithLabelValues("gazebo", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExitsTotal.WithLabelValues("move", OutcomeStartError)))
	// The start error never reached Running, so only two lifetimes.
	assert.Equal(t, uint64(2), histogramSamples(t, m, "roboctl_service_lifetime_seconds"))
}

func TestMetrics_RunState(t *testing.T) {
	m := NewMetrics()

	m.Observe(reporting.NewRunStateEvent("run", reporting.RunBuilding, reporting.RunLaunching, ""))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues(string(reporting.RunLaunching))))

	m.Observe(reporting.NewRunStateEvent("run", reporting.RunLaunching, reporting.RunSteady, "all up"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunState.WithLabelValues(string(reporting.RunLaunching))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues(string(reporting.RunSteady))))
	assert.Equal(t, uint64(1), histogramSamples(t, m, "roboctl_run_settle_seconds"))

	// Leaving a settled state does not observe a second settle time.
	m.Observe(reporting.NewRunStateEvent("run", reporting.RunSteady, reporting.RunAborted, "cancelled"))
	assert.Equal(t, uint64(1), histogramSamples(t, m, "roboctl_run_settle_seconds"))
}

func TestMetrics_AttachToBus(t *testing.T) {
	bus := reporting.NewEventBus()
	defer bus.Close()

	m := NewMetrics()
	m.Attach(bus)

	bus.Publish(reporting.NewRunningEvent("run", "robot_state_publisher", 1))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.LaunchesTotal.WithLabelValues("robot_state_publisher")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMetrics_Serve(t *testing.T) {
	m := NewMetrics()
	m.Observe(reporting.NewRunningEvent("run", "gazebo", 10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := m.Serve(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `roboctl_service_launches_total{service="gazebo"} 1`))
}
