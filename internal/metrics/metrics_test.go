package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersInstruments(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	if m == nil {
		t.Fatal("expected metrics instance")
	}

	// Prime the counter vectors so the families appear in Gather results.
	m.ObserveOperation("add", true)
	m.IncrementPortError("not_found")

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	names := map[string]struct{}{}
	for _, family := range families {
		names[family.GetName()] = struct{}{}
	}

	for _, expected := range []string{"portfwd_operations_total", "portfwd_port_errors_total", "portfwd_dnat_rules"} {
		if _, ok := names[expected]; !ok {
			t.Fatalf("expected metric %q to be registered", expected)
		}
	}
}

func TestMetricsObserveOperation(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	m.ObserveOperation("add", true)
	m.ObserveOperation("add", false)
	m.ObserveOperation("del", false)
	m.ObserveOperation("del", false)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("add", "success")); got != 1 {
		t.Fatalf("expected add/success to be 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("add", "failure")); got != 1 {
		t.Fatalf("expected add/failure to be 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("del", "failure")); got != 2 {
		t.Fatalf("expected del/failure to be 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("del", "success")); got != 0 {
		t.Fatalf("expected del/success to be 0, got %v", got)
	}
}

func TestMetricsIncrementPortError(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	m.IncrementPortError("not_found")
	m.IncrementPortError("not_found")
	m.IncrementPortError("delete_failed")

	if got := testutil.ToFloat64(m.portErrors.WithLabelValues("not_found")); got != 2 {
		t.Fatalf("expected not_found counter to be 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.portErrors.WithLabelValues("delete_failed")); got != 1 {
		t.Fatalf("expected delete_failed counter to be 1, got %v", got)
	}
}

func TestMetricsSetDNATRuleCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input int
	}{
		{name: "zero", input: 0},
		{name: "positive", input: 7},
		{name: "large", input: 123},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewMetrics()
			m.SetDNATRuleCount(tc.input)
			if got := testutil.ToFloat64(m.dnatRules); got != float64(tc.input) {
				t.Fatalf("expected gauge to be %d, got %v", tc.input, got)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.ObserveOperation("add", true)
	m.IncrementPortError("not_found")
	m.IncrementPortError("not_found")
	m.SetDNATRuleCount(5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, snippet := range []string{
		"# TYPE portfwd_operations_total counter",
		"portfwd_operations_total{op=\"add\",outcome=\"success\"} 1",
		"portfwd_port_errors_total{reason=\"not_found\"} 2",
		"portfwd_dnat_rules 5",
	} {
		if !strings.Contains(body, snippet) {
			t.Fatalf("expected metrics output to contain %q, got %q", snippet, body)
		}
	}
}
