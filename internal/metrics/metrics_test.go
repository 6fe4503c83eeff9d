package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordCaptured()
	m.RecordDropped(3)
	m.SetBufferSize(1)
	m.RecordFlush(ResultOK, time.Second)
	m.RecordStoreSave(true)
	m.SetStoreEvents(4)
	m.RecordBackup(false, time.Now())
	m.RecordPruned(2)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.RecordCaptured()
	m.RecordCaptured()
	m.RecordDropped(1)
	m.RecordFlush(ResultError, 10*time.Millisecond)
	m.RecordBackup(true, time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(m.eventsCaptured); got != 2 {
		t.Fatalf("captured = %v", got)
	}
	if got := testutil.ToFloat64(m.flushes.WithLabelValues(ResultError)); got != 1 {
		t.Fatalf("flush errors = %v", got)
	}
	if got := testutil.ToFloat64(m.lastBackupUnix); got != 1700000000 {
		t.Fatalf("last backup = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "reply_tracker_buffer_events_dropped_total 1") {
		t.Fatalf("exposition missing dropped counter:\n%s", rec.Body.String())
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New(WithNamespace("other"))
	a.RecordCaptured()
	if got := testutil.ToFloat64(b.eventsCaptured); got != 0 {
		t.Fatalf("registries must be independent, got %v", got)
	}
}
