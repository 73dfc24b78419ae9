package pipeline

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		t.Fatalf("metric %s not recorded", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s has data %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestStageAndRunMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(ctx) }) //nolint:errcheck

	rec := &recorder{}
	p, err := New(Options{Config: &testConfig{}, SrcDir: t.TempDir(), MeterProvider: mp})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() }) //nolint:errcheck

	mustAttach(t, p, PhaseConfigure, 0, newRecStage(rec, "configure"))
	broken := newRecStage(rec, "compile")
	broken.execErr = errors.New("boom")
	mustAttach(t, p, PhaseBuild, 0, broken)

	if err := p.Build(ctx, PhaseConfigure); err != nil {
		t.Fatalf("Build(configure): %v", err)
	}
	if err := p.Build(ctx, PhaseBuild); err == nil {
		t.Fatal("Build(build) should fail")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := counterTotal(t, rm, "foundry_stage_success_total"); got != 1 {
		t.Errorf("stage successes = %d, want 1", got)
	}
	if got := counterTotal(t, rm, "foundry_stage_failure_total"); got != 1 {
		t.Errorf("stage failures = %d, want 1", got)
	}

	m, ok := findMetric(rm, "foundry_run_duration_seconds")
	if !ok {
		t.Fatal("run duration not recorded")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("run duration has data %T", m.Data)
	}
	var runs uint64
	for _, dp := range hist.DataPoints {
		runs += dp.Count
	}
	if runs != 2 {
		t.Errorf("runs recorded = %d, want 2", runs)
	}
}
