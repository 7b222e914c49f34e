package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/constellation-telemetry/model"
)

func TestObserveTickRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveTick(3 * time.Millisecond)
	collector.ObserveTick(time.Millisecond)

	if got := testutil.ToFloat64(collector.Ticks); got != 2 {
		t.Fatalf("sim_ticks_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "sim_tick_duration_seconds", nil); count != 2 {
		t.Fatalf("sim_tick_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestSetEntitiesAndPhases(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.SetEntities([]model.Entity{
		{ID: "sat-001", Status: model.StatusNominal, Latency: 42},
		{ID: "sat-005", Status: model.StatusOffline, Latency: 0},
	})
	collector.SetPhases([]model.Phase{
		{Name: "Launch", Progress: 100},
		{Name: "Orbit Raise", IsActive: true, Progress: 36},
	})

	if got := testutil.ToFloat64(collector.EntityLatency.WithLabelValues("sat-001")); got != 42 {
		t.Fatalf("sim_entity_latency_ms{sat-001} = %v, want 42", got)
	}
	if got := testutil.ToFloat64(collector.EntitiesNominal); got != 1 {
		t.Fatalf("sim_entities_nominal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.EntitiesTotal); got != 2 {
		t.Fatalf("sim_entities_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.PhaseProgress.WithLabelValues("Orbit Raise")); got != 36 {
		t.Fatalf("sim_phase_progress{Orbit Raise} = %v, want 36", got)
	}
	if got := testutil.ToFloat64(collector.ActivePhase); got != 1 {
		t.Fatalf("sim_phase_active_index = %v, want 1", got)
	}
}

func TestNewEngineCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}
	first.ObserveTick(time.Millisecond)
	if got := testutil.ToFloat64(second.Ticks); got != 1 {
		t.Fatalf("shared sim_ticks_total = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *EngineCollector
	c.ObserveTick(time.Millisecond)
	c.SetEntities(nil)
	c.SetPhases(nil)
	c.IncSelection("LEO-1")
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}

func TestMetricsHandlerExposesEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.ObserveTick(time.Millisecond)
	collector.SetEntities([]model.Entity{{ID: "sat-001", Status: model.StatusNominal, Latency: 50}})
	collector.SetPhases([]model.Phase{{Name: "Launch", IsActive: true, Progress: 2}})
	collector.IncSelection("LEO-1")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_ticks_total",
		"sim_tick_duration_seconds",
		"sim_entity_latency_ms",
		"sim_entities_nominal",
		"sim_entities_total",
		"sim_phase_progress",
		"sim_phase_active_index",
		"sim_selections_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
