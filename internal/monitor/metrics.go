package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roboctl/internal/reporting"
	"roboctl/internal/services"
	"roboctl/pkg/logging"
)

// Exit outcomes recorded by ExitsTotal.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeStartError = "start_error"
)

// Metrics turns bus events into Prometheus series. Each instance owns its
// registry so runs and tests never share state.
type Metrics struct {
	registry *prometheus.Registry

	// LaunchesTotal counts services that reached Running.
	LaunchesTotal *prometheus.CounterVec
	// ExitsTotal counts terminal events, partitioned by outcome.
	ExitsTotal *prometheus.CounterVec
	// ServicesRunning is the number of services currently running.
	ServicesRunning prometheus.Gauge
	// RunState is 1 for the current run state and 0 for the others.
	RunState *prometheus.GaugeVec
	// ServiceLifetime tracks how long services ran before exiting.
	ServiceLifetime prometheus.Histogram
	// SettleDuration tracks the time from Launching to a settled run state.
	SettleDuration prometheus.Histogram

	mu        sync.Mutex
	runningAt map[string]time.Time
	launching time.Time
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LaunchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roboctl_service_launches_total",
			Help: "Services that reached Running",
		}, []string{"service"}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roboctl_service_exits_total",
			Help: "Service exits by outcome",
		}, []string{"service", "outcome"}),
		ServicesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roboctl_services_running",
			Help: "Services currently running",
		}),
		RunState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roboctl_run_state",
			Help: "Current run state (1 for the active state)",
		}, []string{"state"}),
		ServiceLifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roboctl_service_lifetime_seconds",
			Help:    "Time from Running to exit",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		SettleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roboctl_run_settle_seconds",
			Help:    "Time from Launching to Steady, Degraded or Aborted",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		runningAt: make(map[string]time.Time),
	}
	m.registry.MustRegister(
		m.LaunchesTotal,
		m.ExitsTotal,
		m.ServicesRunning,
		m.RunState,
		m.ServiceLifetime,
		m.SettleDuration,
	)
	return m
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Attach subscribes the metrics to every event of a bus.
func (m *Metrics) Attach(bus reporting.EventBus) *reporting.EventSubscription {
	return bus.Subscribe(nil, m.Observe)
}

// Observe records one event.
func (m *Metrics) Observe(ev reporting.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := ev.(type) {
	case reporting.LaunchEvent:
		m.observeLaunch(e)
	case reporting.RunStateEvent:
		m.observeRunState(e)
	}
}

func (m *Metrics) observeLaunch(e reporting.LaunchEvent) {
	name := e.Service()
	if !e.IsExit() {
		m.LaunchesTotal.WithLabelValues(name).Inc()
		m.ServicesRunning.Inc()
		m.runningAt[name] = e.Timestamp()
		return
	}

	outcome := OutcomeSuccess
	var startErr *services.ServiceStartError
	switch {
	case errors.As(e.Error, &startErr):
		outcome = OutcomeStartError
	case e.Status != 0 || e.Error != nil:
		outcome = OutcomeFailure
	}
	m.ExitsTotal.WithLabelValues(name, outcome).Inc()

	if at, ok := m.runningAt[name]; ok {
		m.ServicesRunning.Dec()
		m.ServiceLifetime.Observe(e.Timestamp().Sub(at).Seconds())
		delete(m.runningAt, name)
	}
}

func (m *Metrics) observeRunState(e reporting.RunStateEvent) {
	for _, s := range []reporting.RunState{
		reporting.RunBuilding,
		reporting.RunLaunching,
		reporting.RunSteady,
		reporting.RunDegraded,
		reporting.RunAborted,
	} {
		v := 0.0
		if s == e.NewState {
			v = 1
		}
		m.RunState.WithLabelValues(string(s)).Set(v)
	}

	if e.NewState == reporting.RunLaunching {
		m.launching = e.Timestamp()
		return
	}
	if e.NewState.Settled() && !e.OldState.Settled() && !m.launching.IsZero() {
		m.SettleDuration.Observe(e.Timestamp().Sub(m.launching).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logging.Info("Metrics", "Metrics server listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics", err, "Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return ln.Addr(), nil
}
