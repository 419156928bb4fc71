package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestInit_RegistersWithoutPanic verifies that calling Init with a fresh
// registry does not panic.
func TestInit_RegistersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg)
}

// TestInit_DoubleRegistrationPanics confirms registering the same metric
// names twice to the same registry panics.
func TestInit_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on double registration, but Init did not panic")
		}
	}()
	Init(reg)
}

func TestStreamsMatchedCounter_Increments(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_streams_matched_total",
	}, []string{"group_id", "outcome"})
	reg.MustRegister(counter)

	counter.WithLabelValues("grp-1", "included").Inc()
	counter.WithLabelValues("grp-1", "included").Inc()
	counter.WithLabelValues("grp-1", "excluded").Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range mfs {
		if mf.GetName() == "test_streams_matched_total" {
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	if total != 3 {
		t.Errorf("expected 3 observations, got %v", total)
	}
}

func TestManagedChannelsGauge_SetGet(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "test_managed_channels",
	}, []string{"group_id"})
	reg.MustRegister(gauge)

	gauge.WithLabelValues("grp-1").Set(12)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var val float64
	for _, mf := range mfs {
		if mf.GetName() == "test_managed_channels" {
			if len(mf.GetMetric()) > 0 {
				val = mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
	}
	if val != 12 {
		t.Errorf("gauge value = %v; want 12", val)
	}
}

func TestHandler_Returns200(t *testing.T) {
	h := Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Handler() status = %d; want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "go_") && !strings.Contains(body, "# HELP") {
		t.Error("expected Prometheus text format in response body")
	}
}

func TestMiddleware_RecordsRequest(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("wrapped handler returned %d; want 204", w.Code)
	}

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "teamarr_http_requests_total" {
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "path" && lp.GetValue() == "/ping" {
						found = true
					}
				}
			}
		}
	}
	if !found {
		t.Error("teamarr_http_requests_total metric not found for path=/ping after middleware call")
	}
}

func TestSanitizePath_LongPathTruncated(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := sanitizePath(long)
	if len(got) > 67 {
		t.Errorf("sanitizePath did not truncate: len=%d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated path should end with ..., got %q", got)
	}
}

func TestSanitizePath_ShortPathUnchanged(t *testing.T) {
	path := "/api/v1/stats"
	if got := sanitizePath(path); got != path {
		t.Errorf("sanitizePath(%q) = %q; want unchanged", path, got)
	}
}
