package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, OpCreateFailureMode, true, 10*time.Millisecond)
	rec.Observe(ctx, OpCreateFailureMode, false, 5*time.Millisecond)
	rec.Observe(ctx, OpCreateFailureMode, false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)
	rec.ObserveValidationFailures(ctx, []string{"due_date", "action_owner", "due_date"})
	rec.SetOverdueActions(4)

	if got := testutil.ToFloat64(rec.operations.WithLabelValues(OpCreateFailureMode, "success")); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues(OpCreateFailureMode, "error")); got != 2 {
		t.Fatalf("expected two errors, got %v", got)
	}
	if got := testutil.ToFloat64(rec.validationFailures.WithLabelValues("due_date")); got != 2 {
		t.Fatalf("expected two due_date failures, got %v", got)
	}
	if got := testutil.ToFloat64(rec.overdue); got != 4 {
		t.Fatalf("expected overdue gauge 4, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestPrometheusRecorderCountsBlockedServiceWrites(t *testing.T) {
	rec, err := NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithMetricsRecorder(rec))
	if _, _, err := svc.CreateFailureMode(context.Background(), testActor, highRiskRow()); err == nil {
		t.Fatalf("expected blocked write")
	}
	for _, field := range []string{"recommended_actions", "action_owner", "due_date"} {
		if got := testutil.ToFloat64(rec.validationFailures.WithLabelValues(field)); got != 1 {
			t.Fatalf("expected one failure for %s, got %v", field, got)
		}
	}
}
