package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestWrapCountsByRouteAndCode(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	missing := m.Wrap("get_student", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	ok := m.Wrap("list_students", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})

	for i := 0; i < 2; i++ {
		missing(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/students/x", nil))
	}
	rec := httptest.NewRecorder()
	ok(rec, httptest.NewRequest(http.MethodGet, "/api/students", nil))
	if rec.Body.String() != "[]" {
		t.Fatalf("wrapped handler body = %q", rec.Body.String())
	}

	out := scrape(t, m)
	for _, want := range []string{
		`campus_http_requests_total{code="404",route="get_student"} 2`,
		`campus_http_requests_total{code="200",route="list_students"} 1`,
		`campus_http_request_duration_seconds_count{route="get_student"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q\n%s", want, out)
		}
	}
}

func TestNewMetricsOnSeparateRegistries(t *testing.T) {
	// Registering twice on one registry panics; separate registries must not.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
