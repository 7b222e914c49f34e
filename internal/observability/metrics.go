package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/constellation-telemetry/model"
)

// EngineCollector bundles Prometheus metrics describing the simulated fleet
// and mission timeline, and exposes them over HTTP.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Ticks           prometheus.Counter
	TickDurations   prometheus.Histogram
	EntityLatency   *prometheus.GaugeVec
	EntitiesTotal   prometheus.Gauge
	EntitiesNominal prometheus.Gauge
	PhaseProgress   *prometheus.GaugeVec
	ActivePhase     prometheus.Gauge
	Selections      *prometheus.CounterVec
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total number of applied simulation ticks.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Time spent applying one simulation tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	latency, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_entity_latency_ms",
		Help: "Current simulated link latency per satellite in milliseconds.",
	}, []string{"id"}), "sim_entity_latency_ms")
	if err != nil {
		return nil, err
	}

	total, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_entities_total",
		Help: "Number of tracked satellites.",
	}), "sim_entities_total")
	if err != nil {
		return nil, err
	}

	nominal, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_entities_nominal",
		Help: "Number of tracked satellites in nominal status.",
	}), "sim_entities_nominal")
	if err != nil {
		return nil, err
	}

	progress, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_phase_progress",
		Help: "Completion percentage per mission phase.",
	}, []string{"phase"}), "sim_phase_progress")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_phase_active_index",
		Help: "Index of the active mission phase, -1 when none is active.",
	}), "sim_phase_active_index")
	if err != nil {
		return nil, err
	}

	selections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_selections_total",
		Help: "Selection notifications forwarded, labeled by orbit slot.",
	}, []string{"orbit_slot"}), "sim_selections_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:        gatherer,
		Ticks:           ticks,
		TickDurations:   durations,
		EntityLatency:   latency,
		EntitiesTotal:   total,
		EntitiesNominal: nominal,
		PhaseProgress:   progress,
		ActivePhase:     active,
		Selections:      selections,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records one applied tick and how long it took.
func (c *EngineCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.TickDurations != nil {
		c.TickDurations.Observe(d.Seconds())
	}
}

// SetEntities refreshes per-satellite latency and the fleet status gauges.
func (c *EngineCollector) SetEntities(entities []model.Entity) {
	if c == nil {
		return
	}
	nominal := 0
	for _, e := range entities {
		if e.Status == model.StatusNominal {
			nominal++
		}
		if c.EntityLatency != nil {
			c.EntityLatency.WithLabelValues(e.ID).Set(e.Latency)
		}
	}
	if c.EntitiesTotal != nil {
		c.EntitiesTotal.Set(float64(len(entities)))
	}
	if c.EntitiesNominal != nil {
		c.EntitiesNominal.Set(float64(nominal))
	}
}

// SetPhases refreshes per-phase progress and the active phase index.
func (c *EngineCollector) SetPhases(phases []model.Phase) {
	if c == nil {
		return
	}
	active := -1
	for i, p := range phases {
		if p.IsActive && active < 0 {
			active = i
		}
		if c.PhaseProgress != nil {
			c.PhaseProgress.WithLabelValues(p.Name).Set(float64(p.Progress))
		}
	}
	if c.ActivePhase != nil {
		c.ActivePhase.Set(float64(active))
	}
}

// IncSelection counts a selection notification for the given orbit slot.
func (c *EngineCollector) IncSelection(slot string) {
	if c == nil || c.Selections == nil {
		return
	}
	c.Selections.WithLabelValues(slot).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
