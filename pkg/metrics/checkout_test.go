package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.Observe(ResultSuccess, 120*time.Millisecond)
	m.Observe(ResultSuccess, 80*time.Millisecond)
	m.Observe(ResultOutOfStock, 5*time.Millisecond)
	m.IncReserveRetry()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_outcomes_total", "result", ResultSuccess); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 2 {
		t.Fatalf("expected success=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "checkout_outcomes_total", "result", ResultOutOfStock); err != nil {
		t.Fatalf("fetch out_of_stock: %v", err)
	} else if got != 1 {
		t.Fatalf("expected out_of_stock=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "checkout_duration_seconds", "result", ResultSuccess); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0.19 {
		t.Fatalf("expected duration sum ~0.2, got %f", got)
	}

	mf := findMetricFamily(mfs, "inventory_reserve_retries_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one reserve retry")
	}
}

func TestOrderTransitionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderTransitionMetrics(reg)
	m.Inc("cancelled", ResultSuccess)
	m.Inc("", ResultConflict)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "order_transitions_total", "to", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown target counted once, got %f (%v)", got, err)
	}
}

func TestNilRecordersAreNoops(t *testing.T) {
	NewCheckoutMetrics(nil).Observe(ResultFailure, time.Second)
	var m *CheckoutMetrics
	m.IncReserveRetry()
	var o *OrderTransitionMetrics
	o.Inc("received", ResultSuccess)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
