package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var metrics []*dto.Metric = f.GetMetric()
		if len(metrics) == 0 {
			return 0
		}
		if g := metrics[0].GetGauge(); g != nil {
			return g.GetValue()
		}
		if c := metrics[0].GetCounter(); c != nil {
			return c.GetValue()
		}
	}
	t.Fatalf("metric family %q not found", name)
	return 0
}

func TestUpdatePoolStats(t *testing.T) {
	m := New()
	m.UpdatePoolStats("ds1", 3, 2, 1)

	if got := gaugeValue(t, m, "ansilo_pool_active_connections"); got != 3 {
		t.Fatalf("active connections = %v, want 3", got)
	}
	if got := gaugeValue(t, m, "ansilo_pool_idle_connections"); got != 2 {
		t.Fatalf("idle connections = %v, want 2", got)
	}
}

func TestPoolExhaustedIncrements(t *testing.T) {
	m := New()
	m.PoolExhausted("ds1")
	m.PoolExhausted("ds1")

	if got := gaugeValue(t, m, "ansilo_pool_exhausted_total"); got != 2 {
		t.Fatalf("exhausted total = %v, want 2", got)
	}
}

func TestBridgeSessionGauge(t *testing.T) {
	m := New()
	m.BridgeSessionOpened()
	m.BridgeSessionOpened()
	m.BridgeSessionClosed()

	if got := gaugeValue(t, m, "ansilo_bridge_open_sessions"); got != 1 {
		t.Fatalf("open sessions = %v, want 1", got)
	}
}
